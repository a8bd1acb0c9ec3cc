package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"matchwire/domain"
)

// NotificationRepository persists the in-app channel rows. Keys embed the
// complemented timestamp so a prefix scan yields newest-first.
type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log}
}

type notificationRow struct {
	ID        uuid.UUID         `json:"id"`
	AccountID string            `json:"account_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt int64             `json:"created_at"`
}

func notificationKey(accountID domain.AccountID, createdAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("notif:%s:%s:%s", accountID, invertedNano(createdAt), id))
}

// Save is idempotent by row id and creation time: re-saving the same
// notification overwrites the same key.
func (r *NotificationRepository) Save(_ context.Context, n domain.InAppNotification) error {
	bytes, err := json.Marshal(notificationRow{
		ID:        n.ID,
		AccountID: string(n.AccountID),
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Metadata:  n.Metadata,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(n.AccountID, n.CreatedAt, n.ID), bytes)
	})
}

func (r *NotificationRepository) ListRecent(accountID domain.AccountID, limit int) ([]domain.InAppNotification, error) {
	var rows []notificationRow
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("notif:%s:", accountID))
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if len(rows) == limit {
				break
			}
			var row notificationRow
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.InAppNotification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, domain.InAppNotification{
			ID:        row.ID,
			AccountID: domain.AccountID(row.AccountID),
			Type:      domain.EventType(row.Type),
			Title:     row.Title,
			Body:      row.Body,
			Metadata:  row.Metadata,
			Read:      row.Read,
			CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
		})
	}
	return notifications, nil
}
