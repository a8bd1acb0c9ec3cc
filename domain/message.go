// Package domain contains core concepts of the messaging system.
// This file defines Message entities and their ordering rules.
// Messages are immutable after creation except for the delivered/read flags.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetadataModerationKey marks messages whose content was rewritten by the
// moderation pipeline.
const (
	MetadataModerationKey     = "moderation"
	MetadataModerationFlagged = "flagged"
)

// Message represents one chat message inside a Thread.
// (CreatedAt, ID) together form a stable total order within a thread.
type Message struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	From      AccountID
	To        AccountID
	Content   string
	Metadata  map[string]string
	Delivered bool
	Read      bool
	CreatedAt time.Time
}

func NewMessage(threadID uuid.UUID, from, to AccountID, content string, metadata map[string]string, delivered bool, now time.Time) Message {
	return Message{
		ID:        uuid.New(),
		ThreadID:  threadID,
		From:      from,
		To:        to,
		Content:   content,
		Metadata:  metadata,
		Delivered: delivered,
		CreatedAt: now,
	}
}
