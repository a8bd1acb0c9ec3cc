// Package repositories persists threads, messages, accounts, interests,
// usage counters and in-app notifications in BadgerDB.
//
// Keys embed a 19-digit zero-padded UnixNano timestamp so that a plain
// prefix scan returns rows in chronological order, with the row UUID as a
// collision disambiguator when two rows land on the same nanosecond.
// Listing keys that must sort newest-first embed the bitwise complement of
// the timestamp instead.
package repositories

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"matchwire/domain"
)

type threadRow struct {
	ID            uuid.UUID `json:"id"`
	ParticipantA  string    `json:"participant_a"`
	ParticipantB  string    `json:"participant_b"`
	LastMessageAt int64     `json:"last_message_at"`
	CreatedAt     int64     `json:"created_at"`
	UpdatedAt     int64     `json:"updated_at"`
}

func fromThread(t domain.Thread) threadRow {
	return threadRow{
		ID:            t.ID,
		ParticipantA:  string(t.ParticipantA),
		ParticipantB:  string(t.ParticipantB),
		LastMessageAt: t.LastMessageAt.UnixNano(),
		CreatedAt:     t.CreatedAt.UnixNano(),
		UpdatedAt:     t.UpdatedAt.UnixNano(),
	}
}

func toThread(r threadRow) domain.Thread {
	return domain.Thread{
		ID:            r.ID,
		ParticipantA:  domain.AccountID(r.ParticipantA),
		ParticipantB:  domain.AccountID(r.ParticipantB),
		LastMessageAt: time.Unix(0, r.LastMessageAt).UTC(),
		CreatedAt:     time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, r.UpdatedAt).UTC(),
	}
}

type messageRow struct {
	ID        uuid.UUID         `json:"id"`
	ThreadID  uuid.UUID         `json:"thread_id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Delivered bool              `json:"delivered"`
	Read      bool              `json:"read"`
	CreatedAt int64             `json:"created_at"`
}

func fromMessage(m domain.Message) messageRow {
	return messageRow{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		From:      string(m.From),
		To:        string(m.To),
		Content:   m.Content,
		Metadata:  m.Metadata,
		Delivered: m.Delivered,
		Read:      m.Read,
		CreatedAt: m.CreatedAt.UnixNano(),
	}
}

func toMessage(r messageRow) domain.Message {
	return domain.Message{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		From:      domain.AccountID(r.From),
		To:        domain.AccountID(r.To),
		Content:   r.Content,
		Metadata:  r.Metadata,
		Delivered: r.Delivered,
		Read:      r.Read,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// paddedNano formats a timestamp for lexicographically sortable keys.
func paddedNano(at time.Time) string {
	return fmt.Sprintf("%019d", at.UnixNano())
}

// invertedNano formats a timestamp so that ascending key order is
// newest-first.
func invertedNano(at time.Time) string {
	return fmt.Sprintf("%019d", math.MaxInt64-at.UnixNano())
}

// invertedUUID hex-encodes the bitwise complement of the UUID so that
// ascending key order is id-descending for rows sharing a timestamp.
func invertedUUID(id uuid.UUID) string {
	var b [16]byte
	for i, v := range id {
		b[i] = ^v
	}
	return hex.EncodeToString(b[:])
}

