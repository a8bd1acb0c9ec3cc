// Package resolver maps acting accounts to the effective messaging identity.
// Parent and guardian accounts act through their active candidate link; self
// and candidate accounts are their own identity.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"matchwire/domain"
	apperrors "matchwire/errors"
	"matchwire/repositories"
)

type ParticipantResolver struct {
	accounts repositories.IAccountRepository
	log      *slog.Logger
}

func NewParticipantResolver(accounts repositories.IAccountRepository, log *slog.Logger) *ParticipantResolver {
	return &ParticipantResolver{accounts: accounts, log: log}
}

// EffectiveAccount resolves the account a message is actually sent or
// received as. Resolution fails closed: a parent or guardian without an
// active link cannot message at all.
func (r *ParticipantResolver) EffectiveAccount(_ context.Context, accountID domain.AccountID) (domain.AccountID, error) {
	account, found, err := r.accounts.GetAccount(accountID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("account %s not found", accountID)
	}

	if !account.Role.RequiresIndirection() {
		return accountID, nil
	}

	link, found, err := r.accounts.GetActiveLink(accountID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", apperrors.ErrNoLinkedProfile
	}
	return link.OwnerAccountID, nil
}

// ProfilesForAccounts projects a display profile onto each requested account
// id, following parent/guardian indirection. Entries that cannot be resolved
// map to nil: this path renders participant previews in a list, and one
// broken account must not break the whole page.
func (r *ParticipantResolver) ProfilesForAccounts(_ context.Context, accountIDs []domain.AccountID) map[domain.AccountID]*domain.Profile {
	result := make(map[domain.AccountID]*domain.Profile, len(accountIDs))

	// direct maps each original id to the account whose profile represents it.
	direct := make(map[domain.AccountID]domain.AccountID, len(accountIDs))
	for _, id := range accountIDs {
		result[id] = nil

		account, found, err := r.accounts.GetAccount(id)
		if err != nil || !found {
			if err != nil {
				r.log.Warn("account lookup failed during preview resolution", "account", id, "error", err)
			}
			continue
		}

		if !account.Role.RequiresIndirection() {
			direct[id] = id
			continue
		}

		link, found, err := r.accounts.GetActiveLink(id)
		if err != nil || !found {
			if err != nil {
				r.log.Warn("link lookup failed during preview resolution", "account", id, "error", err)
			}
			continue
		}
		direct[id] = link.OwnerAccountID
	}

	for original, resolved := range direct {
		profile, found, err := r.accounts.GetProfileByAccount(resolved)
		if err != nil || !found {
			if err != nil {
				r.log.Warn("profile lookup failed during preview resolution", "account", resolved, "error", err)
			}
			continue
		}
		p := profile
		result[original] = &p
	}
	return result
}
