package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(10, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(), "request %d within burst should pass", i)
	}
	assert.False(t, rl.Allow(), "burst exhausted")
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(100, 1)

	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow(), "tokens refill over time")
}

func TestHubHandlerRegistration(t *testing.T) {
	hub := NewHub()

	_, ok := hub.GetHandler(MessageTypeMatchMessage)
	assert.False(t, ok)

	hub.RegisterHandler(MessageTypeMatchMessage, func(client *Client, message *Message) error {
		return nil
	})

	_, ok = hub.GetHandler(MessageTypeMatchMessage)
	assert.True(t, ok)
}

func TestHubIsUserOnline(t *testing.T) {
	hub := NewHub()
	assert.False(t, hub.IsUserOnline("alice"))
}

func TestHubMetricsSnapshot(t *testing.T) {
	hub := NewHub()
	snap := hub.GetMetrics()
	assert.Equal(t, int64(0), snap.ActiveConnections)
}
