package repositories

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"matchwire/domain"
)

// UsageRepository keeps per-account monthly counters for quota-gated actions
// (new chats per month, and whatever future actions plans may limit).
type UsageRepository struct {
	db *badger.DB
}

func NewUsageRepository(db *badger.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func usageKey(accountID domain.AccountID, action string, month time.Time) []byte {
	return []byte(fmt.Sprintf("usage:%s:%s:%s", accountID, action, month.UTC().Format("2006-01")))
}

func (r *UsageRepository) Increment(accountID domain.AccountID, action string, now time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := usageKey(accountID, action, now)
		count, err := readCount(txn, key)
		if err != nil {
			return err
		}
		return txn.Set(key, []byte(strconv.FormatUint(count+1, 10)))
	})
}

func (r *UsageRepository) Count(accountID domain.AccountID, action string, now time.Time) (uint64, error) {
	var count uint64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCount(txn, usageKey(accountID, action, now))
		return err
	})
	return count, err
}

func readCount(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(v []byte) error {
		count, err = strconv.ParseUint(string(v), 10, 64)
		return err
	})
	return count, err
}
