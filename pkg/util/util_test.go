package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-10-10T10:10:10Z")
	require.True(t, ok)
	assert.Equal(t, "2024-10-10T10:10:10Z", got.UTC().Format(time.RFC3339))

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)

	def := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 7, 31, 0, time.UTC)
	to := time.Date(2024, 1, 1, 10, 13, 2, 0, time.UTC)

	f, tt := AlignFromTo(from, to, "5m")
	assert.Equal(t, 5, f.Minute())
	assert.Equal(t, 10, tt.Minute())

	f, _ = AlignFromTo(from, to, "1s")
	assert.Equal(t, 31, f.Second())
}

func TestParseIntList(t *testing.T) {
	got, err := ParseIntList("3, 4")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)

	got, err = ParseIntList("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseIntList("3,,4")
	assert.Error(t, err)

	_, err = ParseIntList("3,x")
	assert.Error(t, err)
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("seven", 7))
	assert.Equal(t, 12, ParseIntDefault("12", 7))
}
