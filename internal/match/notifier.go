package match

import "github.com/veilchat/whispermatch/internal/models"

// Notifier is the outbound event capability the gateway hands to the
// core. The core addresses users by id and never touches transport
// primitives; the websocket layer fans events out to the user's open
// connections. Implementations must not block.
type Notifier interface {
	// NotifyMatchFound is sent to both participants when a pairing lands
	NotifyMatchFound(userID string, session *models.MatchSession)

	// NotifyMessage delivers a partner's message; the sender already has
	// the message locally from the HTTP response
	NotifyMessage(userID, sessionID string, msg models.MatchMessage)

	// NotifyPartnerLeft tells the remaining participant to exit the
	// session UI
	NotifyPartnerLeft(userID, sessionID string)

	// NotifyExpired is sent to both participants when the TTL elapses
	NotifyExpired(userID, sessionID string)

	// NotifyWaitTimeout tells a pool-timeout user their wait was cancelled
	NotifyWaitTimeout(userID string)
}

// NopNotifier discards all events; used in tests and as a default
type NopNotifier struct{}

func (NopNotifier) NotifyMatchFound(string, *models.MatchSession)     {}
func (NopNotifier) NotifyMessage(string, string, models.MatchMessage) {}
func (NopNotifier) NotifyPartnerLeft(string, string)                  {}
func (NopNotifier) NotifyExpired(string, string)                      {}
func (NopNotifier) NotifyWaitTimeout(string)                          {}
