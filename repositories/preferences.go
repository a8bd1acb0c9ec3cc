package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"matchwire/contract"
	"matchwire/domain"
)

type preferencesRow struct {
	InAppEnabled bool `json:"inAppEnabled"`
	EmailEnabled bool `json:"emailEnabled"`
	PushEnabled  bool `json:"pushEnabled"`
}

// PreferenceRepository stores per-account channel opt-ins. An account with
// no stored row gets every channel enabled, opt-out is explicit.
type PreferenceRepository struct {
	db *badger.DB
}

func NewPreferenceRepository(db *badger.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func preferencesKey(accountID domain.AccountID) []byte {
	return []byte(fmt.Sprintf("prefs:%s", accountID))
}

func (r *PreferenceRepository) SavePreferences(_ context.Context, accountID domain.AccountID, prefs contract.Preferences) error {
	payload, err := json.Marshal(preferencesRow{
		InAppEnabled: prefs.InAppEnabled,
		EmailEnabled: prefs.EmailEnabled,
		PushEnabled:  prefs.PushEnabled,
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(preferencesKey(accountID), payload)
	})
}

func (r *PreferenceRepository) GetPreferences(_ context.Context, accountID domain.AccountID) (contract.Preferences, error) {
	prefs := contract.Preferences{InAppEnabled: true, EmailEnabled: true, PushEnabled: true}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(preferencesKey(accountID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var row preferencesRow
			if err := json.Unmarshal(val, &row); err != nil {
				return err
			}
			prefs = contract.Preferences{
				InAppEnabled: row.InAppEnabled,
				EmailEnabled: row.EmailEnabled,
				PushEnabled:  row.PushEnabled,
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return prefs, nil
	}
	if err != nil {
		return contract.Preferences{}, err
	}
	return prefs, nil
}
