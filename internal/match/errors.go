package match

import "errors"

// Sentinel errors for the matchmaking core. Handlers map these onto the
// API error taxonomy; callers must treat session errors as terminal, not
// retryable.
var (
	// ErrAlreadyWaiting: the user already has an outstanding waiting entry
	ErrAlreadyWaiting = errors.New("already waiting for a match")

	// ErrAlreadyInSession: the user already holds an active session
	ErrAlreadyInSession = errors.New("already in an active match session")

	// ErrSessionNotFound: unknown session id, or one already evicted
	ErrSessionNotFound = errors.New("match session not found")

	// ErrSessionNotActive: the session exists but is EXPIRED or LEFT
	ErrSessionNotActive = errors.New("match session is no longer active")

	// ErrNotAParticipant: the caller is not one of the two participants
	ErrNotAParticipant = errors.New("not a participant of this session")

	// ErrUserBusy: a store-level claim found the user already holds an
	// active session (raced by another instance)
	ErrUserBusy = errors.New("user already has an active session")

	// ErrUnavailable: the backing store failed after bounded retries
	ErrUnavailable = errors.New("match store unavailable")
)
