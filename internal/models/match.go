package models

import (
	"time"
)

// SessionState is the lifecycle state of a match session
type SessionState string

const (
	SessionActive  SessionState = "ACTIVE"
	SessionExpired SessionState = "EXPIRED"
	SessionLeft    SessionState = "LEFT"
)

// Terminal reports whether the state admits no further transitions
func (s SessionState) Terminal() bool {
	return s == SessionExpired || s == SessionLeft
}

// WaitingEntry is a user parked in the wait pool until a partner shows up
type WaitingEntry struct {
	UserID     string    `json:"userId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// MatchMessage is one message exchanged inside a match session.
// JSON field names match the mobile/web client contract (camelCase).
type MatchMessage struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// MatchSession is one bounded anonymous conversation between two
// randomly paired users. Participants are an unordered pair.
type MatchSession struct {
	ID           string         `json:"sessionId"`
	ParticipantA string         `json:"participantA"`
	ParticipantB string         `json:"participantB"`
	State        SessionState   `json:"state"`
	CreatedAt    time.Time      `json:"createdAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	EndedAt      *time.Time     `json:"endedAt,omitempty"`
	Messages     []MatchMessage `json:"messages"`
}

// HasParticipant reports whether userID is one of the two participants
func (s *MatchSession) HasParticipant(userID string) bool {
	return s.ParticipantA == userID || s.ParticipantB == userID
}

// PartnerOf returns the other participant, or "" if userID is not in the session
func (s *MatchSession) PartnerOf(userID string) string {
	switch userID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	}
	return ""
}

// Due reports whether the session should be expired as of now
func (s *MatchSession) Due(now time.Time) bool {
	return s.State == SessionActive && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so callers can hand sessions across
// goroutine boundaries without sharing the message slice
func (s *MatchSession) Clone() *MatchSession {
	out := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.Messages = make([]MatchMessage, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// ArchivedSession is the durable record written for each terminal session.
// The live transcript is ephemeral; only counts and bounds are kept, for
// the platform's moderation and abuse tooling.
type ArchivedSession struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	SessionID    string       `gorm:"uniqueIndex;not null" json:"session_id"`
	ParticipantA string       `gorm:"index;not null" json:"participant_a"`
	ParticipantB string       `gorm:"index;not null" json:"participant_b"`
	State        SessionState `gorm:"not null" json:"state"`
	MessageCount int          `json:"message_count"`
	CreatedAt    time.Time    `json:"created_at"`
	EndedAt      time.Time    `json:"ended_at"`
	ArchivedAt   time.Time    `gorm:"autoCreateTime" json:"archived_at"`
}
