package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	_, found, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "a", []byte("alpha"), time.Minute))

	val, found, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("alpha"), val)
}

func TestMemoryCapacityBound(t *testing.T) {
	const capacity = 5
	m := NewMemory(capacity)
	ctx := context.Background()

	for i := 0; i < capacity*3; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, m.Set(ctx, key, []byte{byte(i)}, time.Minute))
	}

	assert.Equal(t, capacity, m.Len())

	// The survivors are the most recently written keys.
	for i := capacity*3 - capacity; i < capacity*3; i++ {
		_, found, err := m.Get(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		assert.True(t, found, "key-%d should survive", i)
	}
}

func TestMemoryGetRefreshesRecency(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "old", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "mid", []byte("2"), time.Minute))

	// Touching "old" makes "mid" the eviction candidate.
	_, found, err := m.Get(ctx, "old")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, m.Set(ctx, "new", []byte("3"), time.Minute))

	_, found, _ = m.Get(ctx, "old")
	assert.True(t, found)
	_, found, _ = m.Get(ctx, "mid")
	assert.False(t, found)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "soon", []byte("x"), 30*time.Second))

	// Still valid just before the deadline.
	now = now.Add(29 * time.Second)
	_, found, err := m.Get(ctx, "soon")
	require.NoError(t, err)
	assert.True(t, found)

	// Absent after the deadline, with no intervening Set.
	now = now.Add(2 * time.Second)
	_, found, err = m.Get(ctx, "soon")
	require.NoError(t, err)
	assert.False(t, found)

	// The expired entry was evicted on access.
	assert.Equal(t, 0, m.Len())
}

func TestMemoryPurge(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Minute))
	require.Equal(t, 2, m.Len())

	m.Purge()
	assert.Equal(t, 0, m.Len())

	_, found, _ := m.Get(ctx, "a")
	assert.False(t, found)
}
