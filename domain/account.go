// Package domain contains core concepts of the messaging system.
// This file defines Account identity and role indirection.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
)

type AccountID string

// Role is a closed set. Adding a role must be a compile-time visible change:
// every switch over Role is written exhaustively with no default fallthrough
// for unknown values.
type Role int

const (
	RoleSelf Role = iota
	RoleCandidate
	RoleParent
	RoleGuardian
)

func ParseRole(s string) (Role, error) {
	switch s {
	case "self":
		return RoleSelf, nil
	case "candidate":
		return RoleCandidate, nil
	case "parent":
		return RoleParent, nil
	case "guardian":
		return RoleGuardian, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleSelf:
		return "self"
	case RoleCandidate:
		return "candidate"
	case RoleParent:
		return "parent"
	case RoleGuardian:
		return "guardian"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// RequiresIndirection reports whether the account messages through a linked
// candidate profile instead of its own identity.
func (r Role) RequiresIndirection() bool {
	switch r {
	case RoleSelf, RoleCandidate:
		return false
	case RoleParent, RoleGuardian:
		return true
	}
	return false
}

type Account struct {
	ID   AccountID
	Role Role
}

// CandidateLink attaches a parent or guardian account to the candidate
// profile it acts for. At most one active link may exist per
// (parent, profile) pair.
type CandidateLink struct {
	ParentID       AccountID
	ProfileID      string
	OwnerAccountID AccountID
	Active         bool
}

type Profile struct {
	ID          string
	AccountID   AccountID
	DisplayName string
	PhotoURL    string
}
