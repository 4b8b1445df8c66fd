// Package handlers contains the HTTP handlers for the whisper match API.
package handlers

import (
	"github.com/veilchat/whispermatch/internal/match"
)

// MatchHandlers bundles the matchmaking endpoints around the service
type MatchHandlers struct {
	svc *match.Service
}

// NewMatchHandlers creates the handler set
func NewMatchHandlers(svc *match.Service) *MatchHandlers {
	return &MatchHandlers{svc: svc}
}
