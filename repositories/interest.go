package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"matchwire/domain"
)

type InterestStatus string

const (
	InterestPending  InterestStatus = "pending"
	InterestAccepted InterestStatus = "accepted"
	InterestDeclined InterestStatus = "declined"
)

// InterestRepository stores directed interest records and answers the
// mutual-accepted lookup that gates thread creation.
type InterestRepository struct {
	db *badger.DB
}

func NewInterestRepository(db *badger.DB) *InterestRepository {
	return &InterestRepository{db: db}
}

type interestRow struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"`
}

func interestKey(from, to domain.AccountID) []byte {
	return []byte(fmt.Sprintf("interest:%s:%s", from, to))
}

func (r *InterestRepository) Save(from, to domain.AccountID, status InterestStatus) error {
	bytes, err := json.Marshal(interestRow{
		From:      string(from),
		To:        string(to),
		Status:    string(status),
		UpdatedAt: time.Now().UTC().UnixNano(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(interestKey(from, to), bytes)
	})
}

// HasMutualAccepted reports whether an accepted interest exists between the
// two accounts, in either direction.
func (r *InterestRepository) HasMutualAccepted(_ context.Context, a, b domain.AccountID) (bool, error) {
	accepted := false
	err := r.db.View(func(txn *badger.Txn) error {
		for _, key := range [][]byte{interestKey(a, b), interestKey(b, a)} {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var row interestRow
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			if row.Status == string(InterestAccepted) {
				accepted = true
				return nil
			}
		}
		return nil
	})
	return accepted, err
}
