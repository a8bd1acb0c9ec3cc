package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor is an opaque keyset-pagination token encoding the sort key of the
// last returned row. Callers must round-trip it unmodified.
//
// Wire format: "<RFC3339Nano timestamp>_<uuid>". The underscore separator is
// safe because RFC3339 timestamps never contain one.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func (c Cursor) Encode() string {
	return fmt.Sprintf("%s_%s", c.At.UTC().Format(time.RFC3339Nano), c.ID)
}

func DecodeCursor(s string) (Cursor, error) {
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		return Cursor{}, fmt.Errorf("malformed cursor %q", s)
	}
	at, err := time.Parse(time.RFC3339Nano, s[:idx])
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(s[idx+1:])
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor id: %w", err)
	}
	return Cursor{At: at.UTC(), ID: id}, nil
}
