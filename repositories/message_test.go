package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"matchwire/domain"
	apperrors "matchwire/errors"
)

func appendMessages(t *testing.T, repository *MessageRepository, threadID uuid.UUID, n int) []domain.Message {
	t.Helper()
	base := time.Now().UTC()
	messages := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		from, to := domain.AccountID("alice"), domain.AccountID("bob")
		if i%2 == 1 {
			from, to = to, from
		}
		m := domain.NewMessage(threadID, from, to, "hello", nil, false, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repository.Append(m))
		messages = append(messages, m)
	}
	return messages
}

func Test_List_ReturnsAscendingOrder(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	stored := appendMessages(t, repository, threadID, 5)

	fetched, _, hasMore, err := repository.List(threadID, nil, 10)
	req.NoError(err)
	req.False(hasMore)
	req.Len(fetched, len(stored))
	for i := 1; i < len(fetched); i++ {
		req.False(fetched[i].CreatedAt.Before(fetched[i-1].CreatedAt))
	}
	for i, m := range fetched {
		req.Equal(stored[i].ID, m.ID)
	}
}

func Test_List_PageSizeOneReproducesFullSequence(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	stored := appendMessages(t, repository, threadID, 4)

	var collected []domain.Message
	var cursor *domain.Cursor
	for {
		page, next, hasMore, err := repository.List(threadID, cursor, 1)
		req.NoError(err)
		req.Len(page, 1)
		collected = append(collected, page...)
		if !hasMore {
			break
		}
		cursor = next
	}

	req.Len(collected, len(stored))
	for i := range stored {
		req.Equal(stored[i].ID, collected[i].ID)
	}
}

func Test_List_CursorNeverDuplicates(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	appendMessages(t, repository, threadID, 7)

	seen := make(map[string]struct{})
	var cursor *domain.Cursor
	for {
		page, next, hasMore, err := repository.List(threadID, cursor, 3)
		req.NoError(err)
		for _, m := range page {
			_, dup := seen[m.ID.String()]
			req.False(dup, "message %s returned twice", m.ID)
			seen[m.ID.String()] = struct{}{}
		}
		if !hasMore {
			break
		}
		cursor = next
	}
	req.Len(seen, 7)
}

func Test_MarkRead_AllUnreadWithoutBoundary(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	// 5 messages: indexes 0,2,4 go alice->bob, 1,3 go bob->alice.
	appendMessages(t, repository, threadID, 5)

	updated, err := repository.MarkRead(threadID, "bob", nil)
	req.NoError(err)
	req.Equal(3, updated)

	// Second call finds nothing left to update.
	updated, err = repository.MarkRead(threadID, "bob", nil)
	req.NoError(err)
	req.Equal(0, updated)
}

func Test_MarkRead_RespectsBoundary(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	stored := appendMessages(t, repository, threadID, 5)

	// Boundary at index 2: only messages to bob with CreatedAt <= stored[2]
	// (indexes 0 and 2) flip.
	updated, err := repository.MarkRead(threadID, "bob", &stored[2].ID)
	req.NoError(err)
	req.Equal(2, updated)

	fetched, _, _, err := repository.List(threadID, nil, 10)
	req.NoError(err)
	req.True(fetched[0].Read)
	req.True(fetched[2].Read)
	req.False(fetched[4].Read)
}

func Test_MarkRead_UnknownBoundaryFlipsNothing(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	appendMessages(t, repository, threadID, 5)

	// A boundary id from another thread must not degrade to "mark all".
	stranger := uuid.New()
	updated, err := repository.MarkRead(threadID, "bob", &stranger)
	req.ErrorIs(err, apperrors.ErrMessageNotFound)
	req.Equal(0, updated)

	fetched, _, _, err := repository.List(threadID, nil, 10)
	req.NoError(err)
	for _, m := range fetched {
		req.False(m.Read)
	}
}

func Test_CountFrom(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	threadID := uuid.New()

	appendMessages(t, repository, threadID, 5)

	count, err := repository.CountFrom(threadID, "alice")
	req.NoError(err)
	req.Equal(3, count)

	count, err = repository.CountFrom(threadID, "bob")
	req.NoError(err)
	req.Equal(2, count)
}
