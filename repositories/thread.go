//go:generate go run go.uber.org/mock/mockgen -source=thread.go -destination=../mocks/mock_thread_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"matchwire/domain"
	apperrors "matchwire/errors"
)

const findOrCreateRetries = 5

type IThreadRepository interface {
	FindOrCreate(a, b domain.AccountID) (domain.Thread, bool, error)
	Get(id uuid.UUID) (domain.Thread, error)
	Touch(id uuid.UUID, at time.Time) error
	ListByAccount(accountID domain.AccountID, cursor *domain.Cursor, limit int) ([]domain.Thread, *domain.Cursor, bool, error)
}

type ThreadRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewThreadRepository(db *badger.DB, log *slog.Logger) *ThreadRepository {
	return &ThreadRepository{db: db, log: log}
}

// Key layout:
//
//	thread:{id}                                  -> thread row
//	threadpair:{A}:{B}                           -> thread id (A,B sorted, the uniqueness row)
//	threadidx:{account}:{^last_msg_at}:{^id}     -> thread id (listing index, newest first)
func threadKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("thread:%s", id))
}

func pairKey(a, b domain.AccountID) []byte {
	lo, hi := domain.SortPair(a, b)
	return []byte(fmt.Sprintf("threadpair:%s:%s", lo, hi))
}

func threadIndexKey(accountID domain.AccountID, lastMessageAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("threadidx:%s:%s:%s", accountID, invertedNano(lastMessageAt), invertedUUID(id)))
}

// FindOrCreate returns the unique thread for the unordered pair (a, b),
// creating it when absent. The pair row is read and written inside one
// transaction: under a concurrent create for the same pair, Badger's
// conflict detection aborts the loser, which retries and finds the winner's
// thread. The boolean reports whether the thread was created by this call.
func (r *ThreadRepository) FindOrCreate(a, b domain.AccountID) (domain.Thread, bool, error) {
	var (
		thread  domain.Thread
		created bool
	)
	var err error
	for attempt := 0; attempt < findOrCreateRetries; attempt++ {
		thread, created, err = r.findOrCreateOnce(a, b)
		if err != badger.ErrConflict {
			return thread, created, err
		}
		r.log.Debug("thread creation conflict, retrying", "attempt", attempt+1)
	}
	return domain.Thread{}, false, fmt.Errorf("thread creation kept conflicting: %w", err)
}

func (r *ThreadRepository) findOrCreateOnce(a, b domain.AccountID) (domain.Thread, bool, error) {
	var (
		thread  domain.Thread
		created bool
	)
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(a, b))
		if err == nil {
			var id uuid.UUID
			if err := item.Value(func(v []byte) error {
				id, err = uuid.ParseBytes(v)
				return err
			}); err != nil {
				return err
			}
			thread, err = getThread(txn, id)
			return err
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		thread = domain.NewThread(a, b, time.Now().UTC())
		created = true
		bytes, err := json.Marshal(fromThread(thread))
		if err != nil {
			return err
		}
		if err := txn.Set(threadKey(thread.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(pairKey(a, b), []byte(thread.ID.String())); err != nil {
			return err
		}
		for _, p := range thread.Participants() {
			if err := txn.Set(threadIndexKey(p, thread.LastMessageAt, thread.ID), []byte(thread.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Thread{}, false, err
	}
	return thread, created, nil
}

func (r *ThreadRepository) Get(id uuid.UUID) (domain.Thread, error) {
	var thread domain.Thread
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		thread, err = getThread(txn, id)
		return err
	})
	return thread, err
}

func getThread(txn *badger.Txn, id uuid.UUID) (domain.Thread, error) {
	item, err := txn.Get(threadKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Thread{}, apperrors.ErrThreadNotFound
	}
	if err != nil {
		return domain.Thread{}, err
	}
	var row threadRow
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &row)
	}); err != nil {
		return domain.Thread{}, err
	}
	return toThread(row), nil
}

// Touch bumps LastMessageAt and rewrites the listing index entries, removing
// the old position so each thread appears exactly once per participant.
func (r *ThreadRepository) Touch(id uuid.UUID, at time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		thread, err := getThread(txn, id)
		if err != nil {
			return err
		}
		for _, p := range thread.Participants() {
			if err := txn.Delete(threadIndexKey(p, thread.LastMessageAt, thread.ID)); err != nil {
				return err
			}
		}

		thread.LastMessageAt = at.UTC()
		thread.UpdatedAt = at.UTC()
		bytes, err := json.Marshal(fromThread(thread))
		if err != nil {
			return err
		}
		if err := txn.Set(threadKey(thread.ID), bytes); err != nil {
			return err
		}
		for _, p := range thread.Participants() {
			if err := txn.Set(threadIndexKey(p, thread.LastMessageAt, thread.ID), []byte(thread.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByAccount pages through the account's threads ordered by
// (LastMessageAt desc, id desc). The cursor is strictly exclusive: iteration
// seeks to the cursor row's index key and steps past it. hasMore is computed
// by over-fetching limit+1 rows and trimming.
func (r *ThreadRepository) ListByAccount(accountID domain.AccountID, cursor *domain.Cursor, limit int) ([]domain.Thread, *domain.Cursor, bool, error) {
	var ids []uuid.UUID
	prefix := []byte(fmt.Sprintf("threadidx:%s:", accountID))

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = threadIndexKey(accountID, cursor.At, cursor.ID)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(ids) == limit+1 {
				break
			}
			var id uuid.UUID
			err := it.Item().Value(func(v []byte) error {
				var err error
				id, err = uuid.ParseBytes(v)
				return err
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	hasMore := len(ids) > limit
	if hasMore {
		ids = ids[:limit]
	}

	threads := make([]domain.Thread, 0, len(ids))
	err = r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			thread, err := getThread(txn, id)
			if err != nil {
				return err
			}
			threads = append(threads, thread)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	var next *domain.Cursor
	if len(threads) > 0 {
		last := threads[len(threads)-1]
		next = &domain.Cursor{At: last.LastMessageAt, ID: last.ID}
	}
	return threads, next, hasMore, nil
}
