package match

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/whispermatch/internal/models"
)

func newTestSession(a, b string, ttl time.Duration) *models.MatchSession {
	now := time.Now().UTC()
	return &models.MatchSession{
		ID:           uuid.New().String(),
		ParticipantA: a,
		ParticipantB: b,
		State:        models.SessionActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		Messages:     []models.MatchMessage{},
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, models.SessionActive, got.State)

	forAlice, err := store.GetActiveSessionForUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, forAlice)
	assert.Equal(t, sess.ID, forAlice.ID)

	none, err := store.GetActiveSessionForUser(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStoreCreateClaimsBothUsers(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	first := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, first))

	// Either participant being busy rejects the whole write
	err := store.CreateSession(ctx, newTestSession("bob", "carol", time.Minute))
	assert.ErrorIs(t, err, ErrUserBusy)

	err = store.CreateSession(ctx, newTestSession("carol", "alice", time.Minute))
	assert.ErrorIs(t, err, ErrUserBusy)

	// carol was never claimed by the failed writes
	none, err := store.GetActiveSessionForUser(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStoreAppendMessage(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	msg := models.MatchMessage{
		ID:      uuid.New().String(),
		Sender:  "alice",
		Content: "hello",
		SentAt:  time.Now().UTC(),
	}
	require.NoError(t, store.AppendMessage(ctx, sess.ID, msg))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)

	err = store.AppendMessage(ctx, "nope", msg)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreAppendToTerminalSession(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	ok, err := store.MarkTerminal(ctx, sess.ID, models.SessionLeft, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	err = store.AppendMessage(ctx, sess.ID, models.MatchMessage{ID: "m", Sender: "alice"})
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestMemoryStoreMessageCap(t *testing.T) {
	store := NewMemorySessionStore(3)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	for i := 0; i < 5; i++ {
		msg := models.MatchMessage{
			ID:      uuid.New().String(),
			Sender:  "alice",
			Content: string(rune('a' + i)),
			SentAt:  time.Now().UTC(),
		}
		require.NoError(t, store.AppendMessage(ctx, sess.ID, msg))
	}

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	// Oldest messages are trimmed
	assert.Equal(t, "c", got.Messages[0].Content)
	assert.Equal(t, "e", got.Messages[2].Content)
}

func TestMemoryStoreMarkTerminalIdempotent(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	ok, err := store.MarkTerminal(ctx, sess.ID, models.SessionLeft, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition loses; state stays LEFT
	ok, err = store.MarkTerminal(ctx, sess.ID, models.SessionExpired, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLeft, got.State)
	require.NotNil(t, got.EndedAt)
}

func TestMemoryStoreMarkTerminalReleasesUsers(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	sess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, sess))

	ok, err := store.MarkTerminal(ctx, sess.ID, models.SessionExpired, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	// Both participants can be matched again
	next := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, next))
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	oldSess := newTestSession("alice", "bob", time.Minute)
	require.NoError(t, store.CreateSession(ctx, oldSess))
	_, err := store.MarkTerminal(ctx, oldSess.ID, models.SessionLeft, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	liveSess := newTestSession("carol", "dave", time.Minute)
	require.NoError(t, store.CreateSession(ctx, liveSess))

	evicted, err := store.DeleteExpired(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, oldSess.ID, evicted[0].ID)

	_, err = store.GetSession(ctx, oldSess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Active sessions are never evicted
	_, err = store.GetSession(ctx, liveSess.ID)
	assert.NoError(t, err)
}

func TestMemoryStoreConcurrentClaims(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()

	// Many goroutines race to claim the same pair; exactly one wins
	const attempts = 16
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			results <- store.CreateSession(ctx, newTestSession("alice", "bob", time.Minute))
		}()
	}

	wins := 0
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrUserBusy)
		}
	}
	assert.Equal(t, 1, wins)
}
