package match

import (
	"context"
	"sync"
	"time"

	"github.com/veilchat/whispermatch/internal/models"
)

// SessionStore is the persistence boundary for match sessions and the
// per-user active-session pointer. The in-memory implementation serves a
// single-process deployment and tests; the Redis implementation gives the
// same claim semantics across instances via conditional writes.
//
// Only the match Service transitions session state or appends messages.
type SessionStore interface {
	// CreateSession stores a new ACTIVE session and atomically claims the
	// active-session pointer of both participants. Fails with ErrUserBusy
	// if either participant already holds an active session, in which
	// case nothing is written.
	CreateSession(ctx context.Context, sess *models.MatchSession) error

	// GetSession returns a copy of the session, or ErrSessionNotFound
	GetSession(ctx context.Context, sessionID string) (*models.MatchSession, error)

	// GetActiveSessionForUser returns the user's active session, or
	// (nil, nil) when the user holds none
	GetActiveSessionForUser(ctx context.Context, userID string) (*models.MatchSession, error)

	// AppendMessage appends to the session transcript. Fails with
	// ErrSessionNotFound / ErrSessionNotActive.
	AppendMessage(ctx context.Context, sessionID string, msg models.MatchMessage) error

	// MarkTerminal transitions an ACTIVE session to the given terminal
	// state and releases both participants' pointers. Returns false with
	// no error when the session is already terminal (idempotent).
	MarkTerminal(ctx context.Context, sessionID string, state models.SessionState, endedAt time.Time) (bool, error)

	// DeleteExpired evicts terminal sessions that ended at or before
	// cutoff and returns the evicted records for archiving
	DeleteExpired(ctx context.Context, cutoff time.Time) ([]*models.MatchSession, error)

	// ListSessions returns copies of every stored session, for the
	// sweeper and admin introspection
	ListSessions(ctx context.Context) ([]*models.MatchSession, error)
}

type memoryEntry struct {
	mu   sync.Mutex
	sess *models.MatchSession
}

// MemorySessionStore keeps sessions in process memory. Lookup and pointer
// maps are guarded by the store mutex; transcript and state mutations take
// only the per-session mutex, so traffic on one session never blocks
// another.
type MemorySessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]*memoryEntry
	active     map[string]string // userID -> sessionID
	messageCap int
}

// NewMemorySessionStore creates an empty in-memory store. messageCap
// bounds the per-session transcript; zero means uncapped.
func NewMemorySessionStore(messageCap int) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:   make(map[string]*memoryEntry),
		active:     make(map[string]string),
		messageCap: messageCap,
	}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, sess *models.MatchSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[sess.ParticipantA]; busy {
		return ErrUserBusy
	}
	if _, busy := s.active[sess.ParticipantB]; busy {
		return ErrUserBusy
	}

	s.sessions[sess.ID] = &memoryEntry{sess: sess.Clone()}
	s.active[sess.ParticipantA] = sess.ID
	s.active[sess.ParticipantB] = sess.ID
	return nil
}

func (s *MemorySessionStore) lookup(sessionID string) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*models.MatchSession, error) {
	e := s.lookup(sessionID)
	if e == nil {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

func (s *MemorySessionStore) GetActiveSessionForUser(_ context.Context, userID string) (*models.MatchSession, error) {
	s.mu.RLock()
	sessionID, ok := s.active[userID]
	var e *memoryEntry
	if ok {
		e = s.sessions[sessionID]
	}
	s.mu.RUnlock()

	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

func (s *MemorySessionStore) AppendMessage(_ context.Context, sessionID string, msg models.MatchMessage) error {
	e := s.lookup(sessionID)
	if e == nil {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.State != models.SessionActive {
		return ErrSessionNotActive
	}
	e.sess.Messages = append(e.sess.Messages, msg)
	if s.messageCap > 0 && len(e.sess.Messages) > s.messageCap {
		e.sess.Messages = e.sess.Messages[len(e.sess.Messages)-s.messageCap:]
	}
	return nil
}

func (s *MemorySessionStore) MarkTerminal(_ context.Context, sessionID string, state models.SessionState, endedAt time.Time) (bool, error) {
	e := s.lookup(sessionID)
	if e == nil {
		return false, ErrSessionNotFound
	}

	e.mu.Lock()
	if e.sess.State.Terminal() {
		e.mu.Unlock()
		return false, nil
	}
	e.sess.State = state
	t := endedAt
	e.sess.EndedAt = &t
	a, b := e.sess.ParticipantA, e.sess.ParticipantB
	e.mu.Unlock()

	// Release pointers only if they still reference this session
	s.mu.Lock()
	if s.active[a] == sessionID {
		delete(s.active, a)
	}
	if s.active[b] == sessionID {
		delete(s.active, b)
	}
	s.mu.Unlock()

	return true, nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context, cutoff time.Time) ([]*models.MatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*models.MatchSession
	for id, e := range s.sessions {
		e.mu.Lock()
		terminal := e.sess.State.Terminal()
		old := e.sess.EndedAt != nil && !e.sess.EndedAt.After(cutoff)
		if terminal && old {
			evicted = append(evicted, e.sess.Clone())
			delete(s.sessions, id)
		}
		e.mu.Unlock()
	}
	return evicted, nil
}

func (s *MemorySessionStore) ListSessions(_ context.Context) ([]*models.MatchSession, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.MatchSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.sess.Clone())
		e.mu.Unlock()
	}
	return out, nil
}
