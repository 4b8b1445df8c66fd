package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veilchat/whispermatch/internal/auth"
	"github.com/veilchat/whispermatch/internal/logger"
	"github.com/veilchat/whispermatch/internal/match"
)

// Handler handles WebSocket HTTP upgrade requests and wires inbound
// socket messages into the matchmaking service.
type Handler struct {
	hub       *Hub
	jwtSecret []byte
	svc       *match.Service
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, jwtSecret []byte, svc *match.Service) *Handler {
	return &Handler{
		hub:       hub,
		jwtSecret: jwtSecret,
		svc:       svc,
	}
}

// RegisterDefaultHandlers wires the inbound message types. Clients may
// send match messages over the socket as an alternative to the REST
// endpoint; delivery to the partner is identical.
func (h *Handler) RegisterDefaultHandlers() {
	h.hub.RegisterHandler(MessageTypeMatchMessage, h.handleMatchMessage)
}

func (h *Handler) handleMatchMessage(client *Client, message *Message) error {
	var payload SendMessagePayload
	if err := message.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "matchId and content are required")
		return nil
	}
	if err := match.ValidateContent(payload.Content); err != nil {
		client.SendError("invalid_content", err.Error())
		return nil
	}

	msg, err := h.svc.SendMessage(client.ctx, payload.SessionID, client.UserID, payload.Content)
	if err != nil {
		client.SendError(matchErrorCode(err), err.Error())
		return nil
	}

	// Echo the accepted message back so the sender can reconcile ids
	reply := NewReply(message, MessageTypeMatchMessage, MatchMessagePayload{
		SessionID: payload.SessionID,
		Message:   *msg,
	})
	return client.Send(reply)
}

func matchErrorCode(err error) string {
	switch {
	case errors.Is(err, match.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, match.ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, match.ErrNotAParticipant):
		return "not_a_participant"
	default:
		return "unavailable"
	}
}

// HandleWebSocket handles WebSocket upgrade requests.
// Authentication is via JWT token in query param ?token=... or the
// Authorization header.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	claims, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("WebSocket auth failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks are handled by the CORS layer
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, claims.UserID)
	client.RemoteAddr = c.ClientIP()

	h.hub.Register(client)

	client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     claims.UserID,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects
}

// HandleMetrics returns hub metrics (admin endpoint)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.GetMetrics())
}

func (h *Handler) authenticateRequest(c *gin.Context) (*auth.Claims, error) {
	tokenString := c.Query("token")

	if a := c.GetHeader("Authorization"); a != "" {
		tokenString = strings.TrimPrefix(a, "Bearer ")
	}

	if tokenString == "" {
		return nil, fmt.Errorf("no token provided")
	}
	return auth.ParseToken(h.jwtSecret, tokenString)
}
