package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/collab-chat-relay/domain/chat"
)

func isClosed(c *Client) bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func TestClient_DeliverQueuesFrame(t *testing.T) {
	c := newClient("c1", nil, 4, nil, &mockLogger{})

	c.Deliver(chat.ErrorEvent("hello"))

	require.Len(t, c.send, 1)
	var ev wireEvent
	require.NoError(t, json.Unmarshal(<-c.send, &ev))
	assert.Equal(t, chat.EventError, ev.Event)
	assert.JSONEq(t, `"hello"`, string(ev.Data))
	assert.False(t, isClosed(c))
}

func TestClient_SlowConsumerIsDropped(t *testing.T) {
	c := newClient("c1", nil, 1, nil, &mockLogger{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nothing drains send, so the second and third frames overflow.
		c.Deliver(chat.ErrorEvent("first"))
		c.Deliver(chat.ErrorEvent("second"))
		c.Deliver(chat.ErrorEvent("third"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full send buffer")
	}

	assert.True(t, isClosed(c))
	assert.True(t, c.dropped.Load())
	assert.Len(t, c.send, 1)
}

func TestClient_DeliverAfterCloseIsNoop(t *testing.T) {
	c := newClient("c1", nil, 4, nil, &mockLogger{})
	c.Close()
	c.Close()

	c.Deliver(chat.ErrorEvent("late"))

	assert.Empty(t, c.send)
	assert.False(t, c.dropped.Load())
}

func TestClient_AllowWithoutLimiter(t *testing.T) {
	c := newClient("c1", nil, 1, nil, &mockLogger{})
	for i := 0; i < 100; i++ {
		assert.True(t, c.Allow())
	}
}
