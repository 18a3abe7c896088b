package api

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"

	"github.com/example/collab-chat-relay/domain/chat"
	"github.com/example/collab-chat-relay/modules/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var _ relay.Sink = (*Client)(nil)

// Client is one websocket connection. Outbound frames are queued on send and
// written by writePump; a client whose queue is full is disconnected.
type Client struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	dropped atomic.Bool
	logger  types.Logger
}

func newClient(id string, conn *websocket.Conn, buffer int, limiter *rate.Limiter, logger types.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		send:    make(chan []byte, buffer),
		closed:  make(chan struct{}),
		limiter: limiter,
		logger:  logger,
	}
}

// Deliver queues an event for the connection. It never blocks.
func (c *Client) Deliver(event chat.Outbound) {
	frame, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal outbound event", "conn_id", c.ID, "event", event.Event, "error", err)
		return
	}

	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		if c.dropped.CompareAndSwap(false, true) {
			c.logger.Warn("Send buffer full, dropping slow client", "conn_id", c.ID, "buffer", cap(c.send))
		}
		c.Close()
	}
}

// Close asks the write pump to close the connection. Safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Allow reports whether another inbound frame fits the rate limit.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump owns all writes to the connection until the client is closed or a
// write fails. Closing the socket unblocks the read loop.
func (c *Client) writePump(done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
		close(done)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Write failed", "conn_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Ping failed", "conn_id", c.ID, "error", err)
				return
			}
		case <-c.closed:
			if !c.dropped.Load() {
				c.flush()
			}
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
