//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"matchwire/domain"
	apperrors "matchwire/errors"
)

type IMessageRepository interface {
	Append(message domain.Message) error
	List(threadID uuid.UUID, cursor *domain.Cursor, limit int) ([]domain.Message, *domain.Cursor, bool, error)
	MarkRead(threadID uuid.UUID, readerID domain.AccountID, uptoID *uuid.UUID) (int, error)
	CountFrom(threadID uuid.UUID, accountID domain.AccountID) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// messageKey is formatted as "msg:{thread_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disambiguator if two messages
//     arrive at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:%s", m.ThreadID, paddedNano(m.CreatedAt), m.ID))
}

func messagePrefix(threadID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", threadID))
}

// Append persists a message. Rows are never content-edited afterwards: only
// the delivered/read flags may change.
func (r *MessageRepository) Append(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

// List pages through a thread's messages in ascending (CreatedAt, ID) order.
// Thanks to the padded timestamp in the key, messages are naturally sorted by
// time. The cursor is strictly exclusive and hasMore comes from over-fetching
// limit+1 rows.
func (r *MessageRepository) List(threadID uuid.UUID, cursor *domain.Cursor, limit int) ([]domain.Message, *domain.Cursor, bool, error) {
	prefix := messagePrefix(threadID)
	var rows []messageRow

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = []byte(fmt.Sprintf("msg:%s:%s:%s", threadID, paddedNano(cursor.At), cursor.ID))
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(rows) == limit+1 {
				break
			}
			var row messageRow
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			})
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toMessage(row))
	}

	var next *domain.Cursor
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		next = &domain.Cursor{At: last.CreatedAt, ID: last.ID}
	}
	return messages, next, hasMore, nil
}

// MarkRead flips read=true on every unread message addressed to readerID,
// bounded by the CreatedAt of uptoID when given (inclusive). An uptoID that
// matches no message in the thread aborts with ErrMessageNotFound, nothing
// is flipped. Returns how many rows were updated.
func (r *MessageRepository) MarkRead(threadID uuid.UUID, readerID domain.AccountID, uptoID *uuid.UUID) (int, error) {
	updated := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		updated = 0
		prefix := messagePrefix(threadID)

		type pending struct {
			key []byte
			row messageRow
		}
		var candidates []pending
		var boundary *int64

		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var row messageRow
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			if uptoID != nil && row.ID == *uptoID {
				at := row.CreatedAt
				boundary = &at
			}
			if row.To == string(readerID) && !row.Read {
				candidates = append(candidates, pending{key: item.KeyCopy(nil), row: row})
			}
		}

		if uptoID != nil && boundary == nil {
			return apperrors.ErrMessageNotFound
		}

		for _, c := range candidates {
			if boundary != nil && c.row.CreatedAt > *boundary {
				continue
			}
			c.row.Read = true
			bytes, err := json.Marshal(c.row)
			if err != nil {
				return err
			}
			if err := txn.Set(c.key, bytes); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// CountFrom counts messages sent by accountID in the thread. Used by the
// entitlement gate for per-chat message budgets.
func (r *MessageRepository) CountFrom(threadID uuid.UUID, accountID domain.AccountID) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(threadID)
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row messageRow
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			if row.From == string(accountID) {
				count++
			}
		}
		return nil
	})
	return count, err
}
