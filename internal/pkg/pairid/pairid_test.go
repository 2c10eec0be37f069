package pairid

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestNewIsSymmetric(t *testing.T) {
	for i := 0; i < 200; i++ {
		a, b := uuid.New(), uuid.New()
		if New(a, b) != New(b, a) {
			t.Fatalf("pair id differs by argument order for %s, %s", a, b)
		}
	}
}

func TestNewIsDeterministic(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	first := New(a, b)
	second := New(a, b)
	if first != second {
		t.Fatalf("expected stable id, got %s and %s", first, second)
	}
	if first.Version() != 5 {
		t.Fatalf("expected name-based v5 uuid, got version %d", first.Version())
	}
}

func TestNewDistinguishesPairs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	if New(a, b) == New(a, c) {
		t.Fatal("different pairs produced the same id")
	}
}

func TestOrder(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	low, high := Order(a, b)
	if low != b || high != a {
		t.Fatalf("expected (%s, %s), got (%s, %s)", b, a, low, high)
	}
	if bytes.Compare(low[:], high[:]) > 0 {
		t.Fatal("low must not sort after high")
	}
}
