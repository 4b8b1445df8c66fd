package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/whispermatch/internal/models"
)

func TestFlexibleTimeUnmarshal(t *testing.T) {
	// Unix milliseconds
	var ft FlexibleTime
	require.NoError(t, json.Unmarshal([]byte("1700000000000"), &ft))
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	// RFC3339
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15T10:30:00Z"`), &ft))
	assert.Equal(t, 2024, ft.Year())

	// Garbage
	assert.Error(t, json.Unmarshal([]byte(`{"nope":true}`), &ft))
}

func TestNewReplyReferencesOriginal(t *testing.T) {
	original := NewMessage(MessageTypePing, PingPayload{ClientTime: 123})
	original.ID = "msg-1"

	reply := NewReply(original, MessageTypePong, PongPayload{ClientTime: 123})
	assert.Equal(t, "msg-1", reply.ReplyTo)
	assert.Equal(t, MessageTypePong, reply.Type)
}

func TestParsePayload(t *testing.T) {
	raw := `{"type":"match_message","payload":{"matchId":"abc","content":"hi"}}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	var payload SendMessagePayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "abc", payload.SessionID)
	assert.Equal(t, "hi", payload.Content)
}

func TestMatchFoundPayloadWireFormat(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage(MessageTypeMatchFound, MatchFoundPayload{
		Session: &models.MatchSession{
			ID:           "sess-1",
			ParticipantA: "alice",
			ParticipantB: "bob",
			State:        models.SessionActive,
			CreatedAt:    now,
			ExpiresAt:    now.Add(5 * time.Minute),
			Messages:     []models.MatchMessage{},
		},
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "match_found", decoded["type"])

	matchObj := decoded["payload"].(map[string]any)["match"].(map[string]any)
	assert.Equal(t, "sess-1", matchObj["sessionId"])
	assert.Equal(t, "ACTIVE", matchObj["state"])
	assert.Contains(t, matchObj, "participantA")
	assert.Contains(t, matchObj, "expiresAt")
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("SESSION_NOT_ACTIVE", "session is over")
	assert.Equal(t, MessageTypeError, msg.Type)

	payload := msg.Payload.(ErrorPayload)
	assert.Equal(t, "SESSION_NOT_ACTIVE", payload.Code)
}
