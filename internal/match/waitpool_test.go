package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitPoolFIFOOrder(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)
	_, err = pool.Enqueue("user-2")
	require.NoError(t, err)
	_, err = pool.Enqueue("user-3")
	require.NoError(t, err)

	first := pool.DequeueOldest("")
	require.NotNil(t, first)
	assert.Equal(t, "user-1", first.UserID)

	second := pool.DequeueOldest("")
	require.NotNil(t, second)
	assert.Equal(t, "user-2", second.UserID)

	assert.Equal(t, 1, pool.Len())
}

func TestWaitPoolEnqueueDuplicate(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)

	_, err = pool.Enqueue("user-1")
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
	assert.Equal(t, 1, pool.Len())
}

func TestWaitPoolDequeueExcludesSelf(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)

	assert.Nil(t, pool.DequeueOldest("user-1"))
	assert.True(t, pool.Contains("user-1"))

	_, err = pool.Enqueue("user-2")
	require.NoError(t, err)

	// user-1 is oldest but excluded, so user-2 comes out
	entry := pool.DequeueOldest("user-2")
	require.NotNil(t, entry)
	assert.Equal(t, "user-1", entry.UserID)
}

func TestWaitPoolRemoveIdempotent(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)

	assert.True(t, pool.Remove("user-1"))
	assert.False(t, pool.Remove("user-1"))
	assert.False(t, pool.Contains("user-1"))
}

func TestWaitPoolRestoreFront(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)
	_, err = pool.Enqueue("user-2")
	require.NoError(t, err)

	entry := pool.DequeueOldest("")
	require.Equal(t, "user-1", entry.UserID)

	pool.RestoreFront(entry)

	// user-1 keeps its head-of-line position
	next := pool.DequeueOldest("")
	require.NotNil(t, next)
	assert.Equal(t, "user-1", next.UserID)
}

func TestWaitPoolExpireOlderThan(t *testing.T) {
	pool := NewWaitPool()

	old, err := pool.Enqueue("user-1")
	require.NoError(t, err)
	old.EnqueuedAt = time.Now().UTC().Add(-10 * time.Minute)

	_, err = pool.Enqueue("user-2")
	require.NoError(t, err)

	stale := pool.ExpireOlderThan(time.Now().UTC().Add(-5 * time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, "user-1", stale[0].UserID)

	assert.False(t, pool.Contains("user-1"))
	assert.True(t, pool.Contains("user-2"))
}

func TestWaitPoolSnapshot(t *testing.T) {
	pool := NewWaitPool()

	_, err := pool.Enqueue("user-1")
	require.NoError(t, err)
	_, err = pool.Enqueue("user-2")
	require.NoError(t, err)

	snap := pool.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "user-1", snap[0].UserID)
	assert.Equal(t, "user-2", snap[1].UserID)
}
