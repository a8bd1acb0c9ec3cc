//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"matchwire/domain"
)

type IAccountRepository interface {
	SaveAccount(account domain.Account) error
	GetAccount(id domain.AccountID) (domain.Account, bool, error)
	SaveProfile(profile domain.Profile) error
	GetProfileByAccount(accountID domain.AccountID) (domain.Profile, bool, error)
	SaveLink(link domain.CandidateLink) error
	GetActiveLink(parentID domain.AccountID) (domain.CandidateLink, bool, error)
}

type AccountRepository struct {
	db *badger.DB
}

func NewAccountRepository(db *badger.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type accountRow struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type profileRow struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type linkRow struct {
	ParentID       string `json:"parent_id"`
	ProfileID      string `json:"profile_id"`
	OwnerAccountID string `json:"owner_account_id"`
	Active         bool   `json:"active"`
}

func accountKey(id domain.AccountID) []byte {
	return []byte(fmt.Sprintf("account:%s", id))
}

func profileKey(accountID domain.AccountID) []byte {
	return []byte(fmt.Sprintf("profile:%s", accountID))
}

// linkKey is keyed by (parent, profile): writing an existing pair overwrites
// it, which keeps at most one link row per pair.
func linkKey(parentID domain.AccountID, profileID string) []byte {
	return []byte(fmt.Sprintf("link:%s:%s", parentID, profileID))
}

func (r *AccountRepository) SaveAccount(account domain.Account) error {
	bytes, err := json.Marshal(accountRow{ID: string(account.ID), Role: account.Role.String()})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(account.ID), bytes)
	})
}

func (r *AccountRepository) GetAccount(id domain.AccountID) (domain.Account, bool, error) {
	var account domain.Account
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var row accountRow
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &row)
		}); err != nil {
			return err
		}
		role, err := domain.ParseRole(row.Role)
		if err != nil {
			return err
		}
		account = domain.Account{ID: domain.AccountID(row.ID), Role: role}
		found = true
		return nil
	})
	return account, found, err
}

func (r *AccountRepository) SaveProfile(profile domain.Profile) error {
	bytes, err := json.Marshal(profileRow{
		ID:          profile.ID,
		AccountID:   string(profile.AccountID),
		DisplayName: profile.DisplayName,
		PhotoURL:    profile.PhotoURL,
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.AccountID), bytes)
	})
}

func (r *AccountRepository) GetProfileByAccount(accountID domain.AccountID) (domain.Profile, bool, error) {
	var profile domain.Profile
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(accountID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var row profileRow
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &row)
		}); err != nil {
			return err
		}
		profile = domain.Profile{
			ID:          row.ID,
			AccountID:   domain.AccountID(row.AccountID),
			DisplayName: row.DisplayName,
			PhotoURL:    row.PhotoURL,
		}
		found = true
		return nil
	})
	return profile, found, err
}

// SaveLink stores a candidate link. Activating a link deactivates any other
// active link of the same parent in the same transaction, preserving the
// single-active-link invariant.
func (r *AccountRepository) SaveLink(link domain.CandidateLink) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if link.Active {
			prefix := []byte(fmt.Sprintf("link:%s:", link.ParentID))
			options := badger.DefaultIteratorOptions
			it := txn.NewIterator(options)

			type rewrite struct {
				key []byte
				row linkRow
			}
			var rewrites []rewrite
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				var row linkRow
				if err := item.Value(func(v []byte) error {
					return json.Unmarshal(v, &row)
				}); err != nil {
					it.Close()
					return err
				}
				if row.Active && row.ProfileID != link.ProfileID {
					row.Active = false
					rewrites = append(rewrites, rewrite{key: item.KeyCopy(nil), row: row})
				}
			}
			it.Close()

			for _, rw := range rewrites {
				bytes, err := json.Marshal(rw.row)
				if err != nil {
					return err
				}
				if err := txn.Set(rw.key, bytes); err != nil {
					return err
				}
			}
		}

		bytes, err := json.Marshal(linkRow{
			ParentID:       string(link.ParentID),
			ProfileID:      link.ProfileID,
			OwnerAccountID: string(link.OwnerAccountID),
			Active:         link.Active,
		})
		if err != nil {
			return err
		}
		return txn.Set(linkKey(link.ParentID, link.ProfileID), bytes)
	})
}

// GetActiveLink returns the single active link of a parent or guardian
// account, if any.
func (r *AccountRepository) GetActiveLink(parentID domain.AccountID) (domain.CandidateLink, bool, error) {
	var link domain.CandidateLink
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("link:%s:", parentID))
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row linkRow
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			if row.Active {
				link = domain.CandidateLink{
					ParentID:       domain.AccountID(row.ParentID),
					ProfileID:      row.ProfileID,
					OwnerAccountID: domain.AccountID(row.OwnerAccountID),
					Active:         true,
				}
				found = true
				return nil
			}
		}
		return nil
	})
	return link, found, err
}
