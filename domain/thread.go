package domain

import (
	"time"

	"github.com/google/uuid"
)

// Thread is the 2-party conversation container. Participants are stored
// sorted so that the pair key is canonical regardless of who initiated.
type Thread struct {
	ID            uuid.UUID
	ParticipantA  AccountID
	ParticipantB  AccountID
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SortPair returns the participant pair in canonical order.
func SortPair(a, b AccountID) (AccountID, AccountID) {
	if b < a {
		return b, a
	}
	return a, b
}

func NewThread(a, b AccountID, now time.Time) Thread {
	lo, hi := SortPair(a, b)
	return Thread{
		ID:            uuid.New(),
		ParticipantA:  lo,
		ParticipantB:  hi,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (t Thread) HasParticipant(id AccountID) bool {
	return t.ParticipantA == id || t.ParticipantB == id
}

// Other returns the participant that is not id. Callers must have checked
// membership first.
func (t Thread) Other(id AccountID) AccountID {
	if t.ParticipantA == id {
		return t.ParticipantB
	}
	return t.ParticipantA
}

func (t Thread) Participants() []AccountID {
	return []AccountID{t.ParticipantA, t.ParticipantB}
}
