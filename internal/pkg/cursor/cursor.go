// Package cursor implements opaque keyset cursors over (timestamp, id).
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Direction selects which side of the cursor a page is read from.
type Direction string

const (
	// Older walks from newest to oldest (created_at DESC, id DESC).
	Older Direction = "older"
	// Newer walks from oldest to newest (created_at ASC, id ASC).
	Newer Direction = "newer"
)

// ParseDirection returns Older for an empty value.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", Older:
		return Older, nil
	case Newer:
		return Newer, nil
	default:
		return "", ErrInvalidCursor
	}
}

// Cursor is the position of the last item a client has seen.
type Cursor struct {
	At time.Time `json:"t"`
	ID uuid.UUID `json:"id"`
}

// Of builds a cursor for an item.
func Of(at time.Time, id uuid.UUID) *Cursor {
	return &Cursor{At: at.UTC(), ID: id}
}

// Encode returns the URL-safe wire form of the cursor.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a wire cursor. An empty string decodes to nil (first page).
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.At.IsZero() || c.ID == uuid.Nil {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Compare orders (at, id) keys totally: by time, then by id bytes.
func Compare(aAt time.Time, aID uuid.UUID, bAt time.Time, bID uuid.UUID) int {
	if aAt.Before(bAt) {
		return -1
	}
	if aAt.After(bAt) {
		return 1
	}
	return bytes.Compare(aID[:], bID[:])
}

// After reports whether the key (at, id) lies strictly past c when reading in dir.
// A nil cursor admits every key.
func (c *Cursor) After(dir Direction, at time.Time, id uuid.UUID) bool {
	if c == nil {
		return true
	}
	cmp := Compare(at, id, c.At, c.ID)
	if dir == Newer {
		return cmp > 0
	}
	return cmp < 0
}

// ClampLimit applies the default for non-positive limits and caps at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
