package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veilchat/whispermatch/internal/models"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Whisper match events
	MessageTypeMatchFound   = "match_found"
	MessageTypeMatchMessage = "match_message"
	MessageTypePartnerLeft  = "partner_left"
	MessageTypeMatchExpired = "match_expired"
	MessageTypeWaitTimeout  = "wait_timeout"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a response message referencing the original
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ReplyTo = original.ID
	return msg
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// ParsePayload re-marshals the payload into a typed struct
func (m *Message) ParsePayload(v interface{}) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SystemPayload carries connection lifecycle events
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ErrorPayload describes an error pushed to the client
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload is the client heartbeat
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload echoes the heartbeat with server time
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

// MatchFoundPayload announces a new pairing; JSON inside the session
// follows the whisper-match client contract (camelCase)
type MatchFoundPayload struct {
	Session *models.MatchSession `json:"match"`
}

// MatchMessagePayload relays the partner's message
type MatchMessagePayload struct {
	SessionID string              `json:"matchId"`
	Message   models.MatchMessage `json:"message"`
}

// PartnerLeftPayload tells the remaining participant the partner left
type PartnerLeftPayload struct {
	SessionID string `json:"matchId"`
}

// MatchExpiredPayload announces session expiry to both participants
type MatchExpiredPayload struct {
	SessionID string `json:"matchId"`
}

// SendMessagePayload is the inbound shape for sending a match message
// over the socket instead of the REST endpoint
type SendMessagePayload struct {
	SessionID string `json:"matchId"`
	Content   string `json:"content"`
}
