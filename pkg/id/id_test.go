package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestTime(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	ts, ok := Time(At(now))
	require.True(t, ok)
	assert.True(t, ts.Equal(now))

	_, ok = Time("not-a-ulid")
	assert.False(t, ok)
}
