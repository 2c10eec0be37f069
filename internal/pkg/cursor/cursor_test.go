package cursor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Of(time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC), uuid.New())

	decoded, err := Decode(c.Encode())
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, c.At.Equal(decoded.At))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeEmptyIsFirstPage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"!!!", "bm90LWpzb24", "e30"} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
	}
}

func TestAfterBreaksTiesByID(t *testing.T) {
	at := time.Now().UTC()
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := Of(at, high)

	assert.True(t, c.After(Older, at, low))
	assert.False(t, c.After(Older, at, high))
	assert.False(t, c.After(Newer, at, low))
	assert.True(t, Of(at, low).After(Newer, at, high))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Older, d)

	d, err = ParseDirection("NEWER")
	require.NoError(t, err)
	assert.Equal(t, Newer, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 100, ClampLimit(500, 20, 100))
	assert.Equal(t, 7, ClampLimit(7, 20, 100))
}
