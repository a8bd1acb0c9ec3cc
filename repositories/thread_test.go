package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"matchwire/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_FindOrCreate_IsIdempotentPerPair(t *testing.T) {
	req := require.New(t)
	repository := NewThreadRepository(openTestDB(t), slog.Default())

	first, created, err := repository.FindOrCreate("acc-b", "acc-a")
	req.NoError(err)
	req.True(created)

	// Reversed participant order must resolve to the same thread.
	second, created, err := repository.FindOrCreate("acc-a", "acc-b")
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)

	// Participants are stored sorted.
	req.Equal(domain.AccountID("acc-a"), first.ParticipantA)
	req.Equal(domain.AccountID("acc-b"), first.ParticipantB)
}

func Test_FindOrCreate_ConcurrentCallsYieldOneThread(t *testing.T) {
	req := require.New(t)
	repository := NewThreadRepository(openTestDB(t), slog.Default())

	const callers = 16
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			thread, _, err := repository.FindOrCreate("acc-a", "acc-b")
			require.NoError(t, err)
			ids <- thread.ID.String()
		}()
	}
	wg.Wait()
	close(ids)

	unique := make(map[string]struct{})
	for id := range ids {
		unique[id] = struct{}{}
	}
	req.Len(unique, 1)
}

func Test_ListByAccount_OrdersByLastMessageDesc(t *testing.T) {
	req := require.New(t)
	repository := NewThreadRepository(openTestDB(t), slog.Default())

	t1, _, err := repository.FindOrCreate("me", "alice")
	req.NoError(err)
	t2, _, err := repository.FindOrCreate("me", "bob")
	req.NoError(err)
	t3, _, err := repository.FindOrCreate("me", "clara")
	req.NoError(err)

	base := time.Now().UTC()
	req.NoError(repository.Touch(t1.ID, base.Add(1*time.Minute)))
	req.NoError(repository.Touch(t2.ID, base.Add(3*time.Minute)))
	req.NoError(repository.Touch(t3.ID, base.Add(2*time.Minute)))

	threads, _, hasMore, err := repository.ListByAccount("me", nil, 10)
	req.NoError(err)
	req.False(hasMore)
	req.Len(threads, 3)
	req.Equal(t2.ID, threads[0].ID)
	req.Equal(t3.ID, threads[1].ID)
	req.Equal(t1.ID, threads[2].ID)
}

func Test_ListByAccount_CursorPaginationCoversAllOnce(t *testing.T) {
	req := require.New(t)
	repository := NewThreadRepository(openTestDB(t), slog.Default())

	others := []domain.AccountID{"a", "b", "c", "d", "e"}
	base := time.Now().UTC()
	for i, other := range others {
		thread, _, err := repository.FindOrCreate("me", other)
		req.NoError(err)
		req.NoError(repository.Touch(thread.ID, base.Add(time.Duration(i)*time.Second)))
	}

	seen := make(map[string]struct{})
	var cursor *domain.Cursor
	pages := 0
	for {
		threads, next, hasMore, err := repository.ListByAccount("me", cursor, 2)
		req.NoError(err)
		for _, thread := range threads {
			_, dup := seen[thread.ID.String()]
			req.False(dup, "thread %s returned twice", thread.ID)
			seen[thread.ID.String()] = struct{}{}
		}
		pages++
		if !hasMore {
			break
		}
		cursor = next
	}
	req.Len(seen, len(others))
	req.Equal(3, pages)
}

func Test_Touch_KeepsSingleIndexEntry(t *testing.T) {
	req := require.New(t)
	repository := NewThreadRepository(openTestDB(t), slog.Default())

	thread, _, err := repository.FindOrCreate("me", "alice")
	req.NoError(err)

	base := time.Now().UTC()
	req.NoError(repository.Touch(thread.ID, base.Add(time.Minute)))
	req.NoError(repository.Touch(thread.ID, base.Add(2*time.Minute)))

	threads, _, _, err := repository.ListByAccount("me", nil, 10)
	req.NoError(err)
	req.Len(threads, 1)
	req.True(threads[0].LastMessageAt.Equal(base.Add(2 * time.Minute)))
}
