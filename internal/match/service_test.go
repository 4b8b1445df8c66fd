package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/whispermatch/internal/models"
)

// recordingNotifier captures events for assertions
type recordingNotifier struct {
	mu          sync.Mutex
	matchFound  []string
	messages    map[string][]models.MatchMessage
	partnerLeft []string
	expired     []string
	waitTimeout []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: make(map[string][]models.MatchMessage)}
}

func (r *recordingNotifier) NotifyMatchFound(userID string, _ *models.MatchSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchFound = append(r.matchFound, userID)
}

func (r *recordingNotifier) NotifyMessage(userID, _ string, msg models.MatchMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[userID] = append(r.messages[userID], msg)
}

func (r *recordingNotifier) NotifyPartnerLeft(userID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partnerLeft = append(r.partnerLeft, userID)
}

func (r *recordingNotifier) NotifyExpired(userID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, userID)
}

func (r *recordingNotifier) NotifyWaitTimeout(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitTimeout = append(r.waitTimeout, userID)
}

func (r *recordingNotifier) expiredUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.expired...)
}

func newTestService(ttl time.Duration, notifier Notifier) *Service {
	return NewService(NewMemorySessionStore(0), NewWaitPool(), notifier, ttl)
}

func TestJoinFirstUserWaits(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()

	result, err := svc.Join(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, JoinStatusWaiting, result.Status)
	assert.Nil(t, result.Session)
	assert.True(t, svc.Pool().Contains("alice"))
}

func TestJoinSecondUserMatches(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := newTestService(time.Minute, notifier)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)

	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, JoinStatusMatched, result.Status)
	require.NotNil(t, result.Session)

	sess := result.Session
	assert.Equal(t, "alice", sess.ParticipantA)
	assert.Equal(t, "bob", sess.ParticipantB)
	assert.Equal(t, models.SessionActive, sess.State)
	assert.True(t, sess.ExpiresAt.After(sess.CreatedAt))

	assert.False(t, svc.Pool().Contains("alice"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, notifier.matchFound)
}

func TestJoinFIFOFairness(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "bob")
	require.NoError(t, err)
	// alice and bob paired; carol waits, dave gets carol

	_, err = svc.Join(ctx, "carol")
	require.NoError(t, err)

	result, err := svc.Join(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, JoinStatusMatched, result.Status)
	assert.Equal(t, "carol", result.Session.ParticipantA)
	assert.Equal(t, "dave", result.Session.ParticipantB)
}

func TestJoinPairsWithOldestWaiter(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()

	// Two users parked in the pool, oldest first
	_, err := svc.Pool().Enqueue("user-1")
	require.NoError(t, err)
	_, err = svc.Pool().Enqueue("user-2")
	require.NoError(t, err)

	result, err := svc.Join(context.Background(), "user-3")
	require.NoError(t, err)
	require.Equal(t, JoinStatusMatched, result.Status)
	assert.Equal(t, "user-1", result.Session.ParticipantA)
	assert.Equal(t, "user-3", result.Session.ParticipantB)
	assert.True(t, svc.Pool().Contains("user-2"))
}

func TestJoinRejectsDoubleWait(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Join(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
	assert.Equal(t, 1, svc.Pool().Len())
}

func TestJoinRejectsActiveParticipant(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "bob")
	require.NoError(t, err)

	_, err = svc.Join(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyInSession)
}

func TestJoinConcurrentPairing(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	const users = 40
	ids := make([]string, users)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d-%s", i, gofakeit.LetterN(6))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Join(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	sessions, err := svc.Store().ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, users/2)
	assert.Equal(t, 0, svc.Pool().Len())

	// No user appears in two sessions
	seen := make(map[string]bool)
	for _, sess := range sessions {
		assert.False(t, seen[sess.ParticipantA])
		assert.False(t, seen[sess.ParticipantB])
		seen[sess.ParticipantA] = true
		seen[sess.ParticipantB] = true
	}
}

func TestSendMessageRelaysToPartner(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := newTestService(time.Minute, notifier)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)
	sessID := result.Session.ID

	msg, err := svc.SendMessage(ctx, sessID, "alice", "hey stranger")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hey stranger", msg.Content)
	assert.NotEmpty(t, msg.ID)

	// Only the partner gets the event
	require.Len(t, notifier.messages["bob"], 1)
	assert.Empty(t, notifier.messages["alice"])

	// Transcript preserves order
	_, err = svc.SendMessage(ctx, sessID, "bob", "hello back")
	require.NoError(t, err)

	sess, err := svc.Store().GetSession(ctx, sessID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "hey stranger", sess.Messages[0].Content)
	assert.Equal(t, "hello back", sess.Messages[1].Content)
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, result.Session.ID, "carol", "let me in")
	assert.ErrorIs(t, err, ErrNotAParticipant)

	_, err = svc.SendMessage(ctx, "missing-session", "alice", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLeaveEndsSession(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := newTestService(time.Minute, notifier)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)
	sessID := result.Session.ID

	require.NoError(t, svc.Leave(ctx, sessID, "alice"))

	sess, err := svc.Store().GetSession(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLeft, sess.State)
	require.NotNil(t, sess.EndedAt)
	assert.Equal(t, []string{"bob"}, notifier.partnerLeft)

	// Second leave reports the session is gone
	err = svc.Leave(ctx, sessID, "bob")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	// Messaging a left session fails
	_, err = svc.SendMessage(ctx, sessID, "bob", "anyone there")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	// Both users are free to rejoin
	r, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, JoinStatusWaiting, r.Status)
}

func TestLeaveRejectsOutsider(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)

	err = svc.Leave(ctx, result.Session.ID, "carol")
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestTimerExpiryNotifiesBothSides(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := newTestService(50*time.Millisecond, notifier)
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, err := svc.Store().GetSession(ctx, result.Session.ID)
		return err == nil && sess.State == models.SessionExpired
	}, 2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"alice", "bob"}, notifier.expiredUsers())

	// Both users can join fresh after expiry
	r, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, JoinStatusWaiting, r.Status)
}

func TestLazyExpiryOnMessage(t *testing.T) {
	// Session planted directly in the store with a past deadline and no
	// timer, as after a process restart
	store := NewMemorySessionStore(0)
	svc := NewService(store, NewWaitPool(), nil, time.Minute)
	defer svc.Close()
	ctx := context.Background()

	sess := newTestSession("alice", "bob", -time.Second)
	require.NoError(t, store.CreateSession(ctx, sess))

	_, err := svc.SendMessage(ctx, sess.ID, "alice", "too late")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.State)
}

func TestLazyExpiryOnJoin(t *testing.T) {
	store := NewMemorySessionStore(0)
	svc := NewService(store, NewWaitPool(), nil, time.Minute)
	defer svc.Close()
	ctx := context.Background()

	sess := newTestSession("alice", "bob", -time.Second)
	require.NoError(t, store.CreateSession(ctx, sess))

	// The overdue session must not block a new join
	result, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, JoinStatusWaiting, result.Status)
}

func TestCurrentReturnsActiveSession(t *testing.T) {
	svc := newTestService(time.Minute, nil)
	defer svc.Close()
	ctx := context.Background()

	sess, err := svc.Current(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = svc.Join(ctx, "alice")
	require.NoError(t, err)
	result, err := svc.Join(ctx, "bob")
	require.NoError(t, err)

	sess, err = svc.Current(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, result.Session.ID, sess.ID)
}

func TestCancelStaleWaiters(t *testing.T) {
	notifier := newRecordingNotifier()
	svc := newTestService(time.Minute, notifier)
	defer svc.Close()
	ctx := context.Background()

	result, err := svc.Join(ctx, "alice")
	require.NoError(t, err)
	result.Waiting.EnqueuedAt = time.Now().UTC().Add(-10 * time.Minute)

	cancelled := svc.CancelStaleWaiters(time.Now().UTC().Add(-5 * time.Minute))
	assert.Equal(t, 1, cancelled)
	assert.False(t, svc.Pool().Contains("alice"))
	assert.Equal(t, []string{"alice"}, notifier.waitTimeout)
}

func TestExpireDueSweepsOverdueSessions(t *testing.T) {
	store := NewMemorySessionStore(0)
	notifier := newRecordingNotifier()
	svc := NewService(store, NewWaitPool(), notifier, time.Minute)
	defer svc.Close()
	ctx := context.Background()

	overdue := newTestSession("alice", "bob", -time.Second)
	require.NoError(t, store.CreateSession(ctx, overdue))
	live := newTestSession("carol", "dave", time.Minute)
	require.NoError(t, store.CreateSession(ctx, live))

	expired := svc.ExpireDue(ctx)
	assert.Equal(t, 1, expired)

	got, err := store.GetSession(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.State)

	got, err = store.GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.State)
}

func TestValidateContent(t *testing.T) {
	assert.Error(t, ValidateContent(""))
	assert.NoError(t, ValidateContent("hello"))

	long := make([]rune, maxMessageRunes+1)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, ValidateContent(string(long)))
	assert.NoError(t, ValidateContent(string(long[:maxMessageRunes])))
}
