package websocket

import (
	"github.com/veilchat/whispermatch/internal/models"
)

// MatchNotifier adapts the hub to the match.Notifier capability. Every
// event is a unicast to the addressed user; the hub fans it out to all
// of that user's open connections. Sends are buffered channel writes
// and never block the matchmaking core.
type MatchNotifier struct {
	hub *Hub
}

// NewMatchNotifier wraps the hub
func NewMatchNotifier(hub *Hub) *MatchNotifier {
	return &MatchNotifier{hub: hub}
}

func (n *MatchNotifier) NotifyMatchFound(userID string, session *models.MatchSession) {
	n.hub.SendToUser(userID, NewMessage(MessageTypeMatchFound, MatchFoundPayload{
		Session: session,
	}))
}

func (n *MatchNotifier) NotifyMessage(userID, sessionID string, msg models.MatchMessage) {
	n.hub.SendToUser(userID, NewMessage(MessageTypeMatchMessage, MatchMessagePayload{
		SessionID: sessionID,
		Message:   msg,
	}))
}

func (n *MatchNotifier) NotifyPartnerLeft(userID, sessionID string) {
	n.hub.SendToUser(userID, NewMessage(MessageTypePartnerLeft, PartnerLeftPayload{
		SessionID: sessionID,
	}))
}

func (n *MatchNotifier) NotifyExpired(userID, sessionID string) {
	n.hub.SendToUser(userID, NewMessage(MessageTypeMatchExpired, MatchExpiredPayload{
		SessionID: sessionID,
	}))
}

func (n *MatchNotifier) NotifyWaitTimeout(userID string) {
	n.hub.SendToUser(userID, NewMessage(MessageTypeWaitTimeout, nil))
}
