package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veilchat/whispermatch/internal/logger"
	"github.com/veilchat/whispermatch/internal/metrics"
	"github.com/veilchat/whispermatch/internal/models"
)

const (
	// JoinStatusMatched / JoinStatusWaiting are the two join outcomes in
	// the client contract
	JoinStatusMatched = "matched"
	JoinStatusWaiting = "waiting"

	// Bounded retries against a flaky backing store
	storeRetries    = 3
	storeRetryDelay = 50 * time.Millisecond

	maxMessageRunes = 2000
)

// JoinResult is the outcome of a join call
type JoinResult struct {
	Status  string               `json:"status"`
	Session *models.MatchSession `json:"match,omitempty"`
	Waiting *models.WaitingEntry `json:"-"`
}

// Service implements the matchmaker and session lifecycle. The join
// path (dequeue partner + create session + claim both users) runs under
// a single mutex, so no two joins can claim the same waiting entry.
// Message and leave traffic is session-scoped: it goes straight to the
// store, which serializes per session without cross-session contention.
type Service struct {
	store    SessionStore
	pool     *WaitPool
	notifier Notifier

	sessionTTL time.Duration

	// joinMu guards the dequeue-and-create critical section
	joinMu sync.Mutex

	// One expiry timer per session created by this instance
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	closed bool
}

// NewService creates the matchmaking service
func NewService(store SessionStore, pool *WaitPool, notifier Notifier, sessionTTL time.Duration) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:      store,
		pool:       pool,
		notifier:   notifier,
		sessionTTL: sessionTTL,
		timers:     make(map[string]*time.Timer),
	}
}

// Pool exposes the wait pool for the sweeper and admin introspection
func (s *Service) Pool() *WaitPool {
	return s.pool
}

// Store exposes the session store for the sweeper and admin introspection
func (s *Service) Store() SessionStore {
	return s.store
}

// Join pairs the user with the oldest waiting stranger, or parks them in
// the wait pool when nobody is available.
func (s *Service) Join(ctx context.Context, userID string) (*JoinResult, error) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	m := metrics.Get()

	// Lazy expiry first: a due session must never block a new join
	current, err := s.activeSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		m.JoinsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyInSession
	}

	if s.pool.Contains(userID) {
		m.JoinsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyWaiting
	}

	for {
		partner := s.pool.DequeueOldest(userID)
		if partner == nil {
			entry, err := s.pool.Enqueue(userID)
			if err != nil {
				return nil, err
			}
			m.JoinsTotal.WithLabelValues("waiting").Inc()
			m.WaitingUsers.Set(float64(s.pool.Len()))
			logger.Log.Info("User enqueued for whisper match", logger.WithUserID(userID))
			return &JoinResult{Status: JoinStatusWaiting, Waiting: entry}, nil
		}

		now := time.Now().UTC()
		sess := &models.MatchSession{
			ID:           uuid.New().String(),
			ParticipantA: partner.UserID,
			ParticipantB: userID,
			State:        models.SessionActive,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.sessionTTL),
			Messages:     []models.MatchMessage{},
		}

		err := s.withRetry(func() error {
			return s.store.CreateSession(ctx, sess)
		})
		if errors.Is(err, ErrUserBusy) {
			// Another instance claimed one of the two since we last
			// looked. Re-check the caller; a busy caller must not eat
			// the partner's entry.
			current, cerr := s.activeSession(ctx, userID)
			if cerr != nil {
				s.restore(partner)
				return nil, cerr
			}
			if current != nil {
				s.restore(partner)
				m.JoinsTotal.WithLabelValues("rejected").Inc()
				return nil, ErrAlreadyInSession
			}
			// The partner was the busy one; their entry was stale. Try
			// the next oldest.
			logger.Log.Warn("Dropped stale waiting entry",
				logger.WithUserID(partner.UserID))
			continue
		}
		if err != nil {
			// Transient store failure: put the partner back so no
			// waiting entry is silently lost
			s.restore(partner)
			m.JoinsTotal.WithLabelValues("error").Inc()
			return nil, ErrUnavailable
		}

		s.scheduleExpiry(sess.ID, s.sessionTTL)

		m.JoinsTotal.WithLabelValues("matched").Inc()
		m.MatchesTotal.Inc()
		m.ActiveSessions.Inc()
		m.WaitingUsers.Set(float64(s.pool.Len()))
		m.WaitDuration.Observe(now.Sub(partner.EnqueuedAt).Seconds())

		logger.Log.Info("Whisper match created",
			logger.WithSessionID(sess.ID),
			zap.String("participant_a", sess.ParticipantA),
			zap.String("participant_b", sess.ParticipantB),
			zap.Time("expires_at", sess.ExpiresAt),
		)

		// Both sides get the matched event; the caller also has it in
		// the HTTP response
		s.notifier.NotifyMatchFound(partner.UserID, sess.Clone())
		s.notifier.NotifyMatchFound(userID, sess.Clone())

		return &JoinResult{Status: JoinStatusMatched, Session: sess.Clone()}, nil
	}
}

// SendMessage appends a message to an active session and relays it to
// the other participant.
func (s *Service) SendMessage(ctx context.Context, sessionID, senderID, content string) (*models.MatchMessage, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(senderID) {
		logger.Log.Warn("Message from non-participant rejected",
			logger.WithSessionID(sessionID),
			logger.WithUserID(senderID),
		)
		return nil, ErrNotAParticipant
	}

	// Lazy expiry: past the deadline counts as expired even if the
	// timer has not fired yet
	if sess.Due(time.Now().UTC()) {
		s.expire(sessionID)
		return nil, ErrSessionNotActive
	}
	if sess.State != models.SessionActive {
		return nil, ErrSessionNotActive
	}

	msg := models.MatchMessage{
		ID:      uuid.New().String(),
		Sender:  senderID,
		Content: content,
		SentAt:  time.Now().UTC(),
	}
	err = s.withRetry(func() error {
		return s.store.AppendMessage(ctx, sessionID, msg)
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionNotActive) {
			// Raced with expiry or leave between the check and the append
			return nil, ErrSessionNotActive
		}
		return nil, ErrUnavailable
	}

	metrics.Get().MessagesRelayed.Inc()
	s.notifier.NotifyMessage(sess.PartnerOf(senderID), sessionID, msg)
	return &msg, nil
}

// Leave ends the session on behalf of one participant and signals the
// other. A second leave on the same session reports ErrSessionNotActive.
func (s *Service) Leave(ctx context.Context, sessionID, userID string) error {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.HasParticipant(userID) {
		return ErrNotAParticipant
	}

	if sess.Due(time.Now().UTC()) {
		s.expire(sessionID)
		return ErrSessionNotActive
	}

	ok, err := s.markTerminal(ctx, sessionID, models.SessionLeft)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against expiry or the partner's leave; both
		// transitions are terminal, so this is a no-op
		return ErrSessionNotActive
	}

	s.cancelExpiry(sessionID)
	m := metrics.Get()
	m.ActiveSessions.Dec()
	m.SessionsEnded.WithLabelValues("left").Inc()

	logger.Log.Info("Participant left whisper match",
		logger.WithSessionID(sessionID),
		logger.WithUserID(userID),
	)
	s.notifier.NotifyPartnerLeft(sess.PartnerOf(userID), sessionID)
	return nil
}

// Current returns the caller's active session, expiring it lazily if
// due. Returns (nil, nil) when the user holds no active session.
func (s *Service) Current(ctx context.Context, userID string) (*models.MatchSession, error) {
	return s.activeSession(ctx, userID)
}

// CancelStaleWaiters removes every waiting entry enqueued at or before
// cutoff and tells those users their wait was cancelled. Implements the
// optional wait-timeout policy; the sweeper drives it.
func (s *Service) CancelStaleWaiters(cutoff time.Time) int {
	stale := s.pool.ExpireOlderThan(cutoff)
	if len(stale) == 0 {
		return 0
	}
	metrics.Get().WaitingUsers.Set(float64(s.pool.Len()))
	for _, entry := range stale {
		logger.Log.Info("Waiting entry timed out", logger.WithUserID(entry.UserID))
		s.notifier.NotifyWaitTimeout(entry.UserID)
	}
	return len(stale)
}

// ExpireDue transitions every overdue ACTIVE session; the sweeper calls
// this as a backstop for timers lost to a restart.
func (s *Service) ExpireDue(ctx context.Context) int {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		logger.ErrorWithFields("Failed to list sessions for expiry sweep", err)
		return 0
	}

	now := time.Now().UTC()
	expired := 0
	for _, sess := range sessions {
		if sess.Due(now) {
			s.expire(sess.ID)
			expired++
		}
	}
	return expired
}

// Close stops all pending expiry timers
func (s *Service) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// expire performs the timer-driven ACTIVE -> EXPIRED transition. It is
// idempotent: a session already LEFT or EXPIRED makes it a no-op.
func (s *Service) expire(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return
	}

	ok, err := s.markTerminal(ctx, sessionID, models.SessionExpired)
	if err != nil || !ok {
		return
	}

	s.cancelExpiry(sessionID)
	m := metrics.Get()
	m.ActiveSessions.Dec()
	m.SessionsEnded.WithLabelValues("expired").Inc()

	logger.Log.Info("Whisper match expired", logger.WithSessionID(sessionID))
	s.notifier.NotifyExpired(sess.ParticipantA, sessionID)
	s.notifier.NotifyExpired(sess.ParticipantB, sessionID)
}

func (s *Service) scheduleExpiry(sessionID string, ttl time.Duration) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if s.closed {
		return
	}
	s.timers[sessionID] = time.AfterFunc(ttl, func() {
		s.expire(sessionID)
	})
}

func (s *Service) cancelExpiry(sessionID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// activeSession resolves the user's active session with lazy expiry
func (s *Service) activeSession(ctx context.Context, userID string) (*models.MatchSession, error) {
	var sess *models.MatchSession
	err := s.withRetry(func() error {
		var inner error
		sess, inner = s.store.GetActiveSessionForUser(ctx, userID)
		return inner
	})
	if err != nil {
		return nil, ErrUnavailable
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Due(time.Now().UTC()) {
		s.expire(sess.ID)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*models.MatchSession, error) {
	var sess *models.MatchSession
	err := s.withRetry(func() error {
		var inner error
		sess, inner = s.store.GetSession(ctx, sessionID)
		return inner
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrUnavailable
	}
	return sess, nil
}

func (s *Service) markTerminal(ctx context.Context, sessionID string, state models.SessionState) (bool, error) {
	var ok bool
	err := s.withRetry(func() error {
		var inner error
		ok, inner = s.store.MarkTerminal(ctx, sessionID, state, time.Now().UTC())
		return inner
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, ErrSessionNotFound
		}
		return false, ErrUnavailable
	}
	return ok, nil
}

// restore puts a dequeued-but-unmatched entry back at the front of the
// pool so its FIFO position survives a failed pairing
func (s *Service) restore(entry *models.WaitingEntry) {
	s.pool.RestoreFront(entry)
}

// withRetry retries transient store failures a bounded number of times.
// Domain errors pass through untouched.
func (s *Service) withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < storeRetries; attempt++ {
		err = op()
		if err == nil || isDomainError(err) {
			return err
		}
		logger.Log.Warn("Store operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		time.Sleep(storeRetryDelay)
	}
	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrAlreadyWaiting) ||
		errors.Is(err, ErrAlreadyInSession) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrNotAParticipant) ||
		errors.Is(err, ErrUserBusy)
}

// ValidateContent enforces the platform's message hygiene rules
func ValidateContent(content string) error {
	if content == "" {
		return errors.New("message content must not be empty")
	}
	if len([]rune(content)) > maxMessageRunes {
		return errors.New("message content exceeds maximum length")
	}
	return nil
}
