package pairid

import (
	"bytes"

	"github.com/google/uuid"
)

// namespace scopes pair identifiers so they never collide with other v5 ids.
var namespace = uuid.MustParse("6b1f3c52-8f0e-5d47-9a1c-3e2d4b5a6f70")

// Order returns the two ids sorted bytewise, matching Postgres uuid ordering.
func Order(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// New returns the canonical identifier for the unordered pair {a, b}.
// New(a, b) == New(b, a) for any two ids.
func New(a, b uuid.UUID) uuid.UUID {
	low, high := Order(a, b)
	name := make([]byte, 0, 32)
	name = append(name, low[:]...)
	name = append(name, high[:]...)
	return uuid.NewSHA1(namespace, name)
}
