package database

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a Postgres uuid[] column.
type UUIDArray []uuid.UUID

// Value implements driver.Valuer.
func (a UUIDArray) Value() (driver.Value, error) {
	return pq.StringArray(UUIDStrings(a)).Value()
}

// Scan implements sql.Scanner.
func (a *UUIDArray) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	if raw == nil {
		*a = nil
		return nil
	}
	out := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("scan uuid array: %w", err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

// Contains reports whether id is in the array.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

// UUIDStrings converts ids for use with pq.Array and ::uuid[] casts.
func UUIDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
