package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/example/collab-chat-relay/domain/chat"
	"github.com/example/collab-chat-relay/modules/relay"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	disconnectTimeout = 5 * time.Second

	errTextMalformed = "Invalid message format"
	errTextRateLimit = "rate limit exceeded"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")
	api.Get("/history", m.getHistory)
	api.Get("/users", m.getUsers)
	api.Get("/archive", m.getArchive)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
		},
	})
}

// getHistory handles GET /api/v1/history.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	limit := queryLimit(c, defaultHistoryLimit)

	snap, err := m.relayPort.Snapshot(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "relay_unavailable",
			Message: "Failed to read message history",
		})
	}

	messages := snap.History
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	return c.JSON(HistoryResponse{
		Messages: messages,
		Total:    len(snap.History),
	})
}

// getUsers handles GET /api/v1/users.
func (m *APIModule) getUsers(c *fiber.Ctx) error {
	snap, err := m.relayPort.Snapshot(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "relay_unavailable",
			Message: "Failed to read users",
		})
	}

	resp := UsersResponse{Users: snap.Users, Typing: snap.Typing}
	if resp.Users == nil {
		resp.Users = []chat.Presence{}
	}
	if resp.Typing == nil {
		resp.Typing = []string{}
	}
	return c.JSON(resp)
}

// getArchive handles GET /api/v1/archive.
func (m *APIModule) getArchive(c *fiber.Ctx) error {
	if m.archive == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Archive is disabled",
		})
	}

	resp, err := m.archive.Recent(c.UserContext(), c.Query("username"), queryLimit(c, defaultHistoryLimit))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "archive_unavailable",
			Message: "Failed to read archive",
		})
	}

	messages := resp.Messages
	if messages == nil {
		messages = []chat.Message{}
	}
	return c.JSON(ArchiveResponse{
		Messages: messages,
		Total:    resp.Total,
	})
}

// queryLimit reads ?limit=, falling back to def for missing or out-of-range values.
func queryLimit(c *fiber.Ctx, def int) int {
	limit := c.QueryInt("limit", def)
	if limit <= 0 || limit > maxHistoryLimit {
		return def
	}
	return limit
}

// handleWebSocket handles WebSocket connections at /ws.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	limiter := rate.NewLimiter(rate.Limit(m.cfg.RateLimit), m.cfg.RateBurst)
	client := newClient(m.newID(), c, m.cfg.SendBuffer, limiter, m.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.relay.Connect(ctx, client.ID, client); err != nil {
		m.logger.Error("Failed to register connection", "conn_id", client.ID, "error", err)
		return
	}
	m.hub.Register(client)

	pumpDone := make(chan struct{})
	go client.writePump(pumpDone)

	defer func() {
		client.Close()
		<-pumpDone
		m.hub.Unregister(client.ID)

		dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer dcancel()
		if err := m.relay.Disconnect(dctx, client.ID); err != nil && !errors.Is(err, relay.ErrRelayStopped) {
			m.logger.Warn("Failed to disconnect", "conn_id", client.ID, "error", err)
		}
		m.logger.Info("WebSocket client disconnected", "conn_id", client.ID)
	}()

	m.logger.Info("WebSocket client connected", "conn_id", client.ID, "ip", c.IP())

	c.SetReadLimit(m.cfg.MaxFrameBytes)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				m.logger.Debug("Read error", "conn_id", client.ID, "error", err)
			}
			return
		}

		if !client.Allow() {
			client.Deliver(chat.ErrorEvent(errTextRateLimit))
			continue
		}

		in, err := chat.DecodeInbound(frame)
		if err != nil {
			client.Deliver(chat.ErrorEvent(errTextMalformed))
			continue
		}

		if err := m.dispatch(ctx, client.ID, in); err != nil {
			if errors.Is(err, relay.ErrRelayStopped) {
				return
			}
			// The relay has already answered the sender with an error event.
			m.logger.Debug("Event rejected", "conn_id", client.ID, "event", chat.EventName(in), "error", err)
		}
	}
}

// dispatch routes a decoded inbound event to the relay.
func (m *APIModule) dispatch(ctx context.Context, connID string, in chat.Inbound) error {
	switch ev := in.(type) {
	case chat.JoinRequest:
		return m.relay.Join(ctx, connID, ev.Username)
	case chat.SendRequest:
		return m.relay.Send(ctx, connID, ev.Text)
	case chat.TypingStarted:
		return m.relay.Typing(ctx, connID)
	case chat.TypingStopped:
		return m.relay.StopTyping(ctx, connID)
	default:
		return chat.ErrMalformedFrame
	}
}
