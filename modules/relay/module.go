package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/collab-chat-relay/domain/chat"
	"github.com/example/collab-chat-relay/events"
)

// Module runs the relay loop inside the mono application and publishes its
// state transitions as chat domain events.
type Module struct {
	relay     *Relay
	eventBus  mono.EventBus
	logger    types.Logger
	cancelRun context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Observer                   = (*Module)(nil)
	_ MentionHandler             = (*Module)(nil)
)

// NewModule creates the relay module. The module registers itself as the
// relay's observer and mention handler.
func NewModule(logger types.Logger, opts ...Option) *Module {
	m := &Module{logger: logger}
	opts = append(opts, WithObserver(m), WithMentionHandler(m))
	m.relay = New(opts...)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// Relay returns the relay for in-process transports.
func (m *Module) Relay() *Relay {
	return m.relay
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePostedV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.MentionRequestedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePostBotReply, json.Unmarshal, json.Marshal, m.postBotReply,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePostBotReply, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSnapshot, json.Unmarshal, json.Marshal, m.snapshot,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSnapshot, err)
	}

	m.logger.Info("Registered relay services", "services", []string{ServicePostBotReply, ServiceSnapshot})
	return nil
}

// Start launches the relay loop.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	go m.relay.Run(ctx)

	m.logger.Info("Relay module started", "bot", m.relay.BotName())
	return nil
}

// Stop stops the relay loop and waits for it to exit.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancelRun == nil {
		return nil
	}
	m.cancelRun()

	select {
	case <-m.relay.Done():
	case <-ctx.Done():
		return fmt.Errorf("relay did not stop: %w", ctx.Err())
	}
	m.logger.Info("Relay module stopped")
	return nil
}

// Health reports the relay counts.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats, err := m.relay.Stats(ctx)
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("relay unavailable: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": stats.Connections,
			"joined":      stats.Joined,
			"messages":    stats.Messages,
			"typing":      stats.Typing,
		},
	}
}

func (m *Module) postBotReply(ctx context.Context, req PostBotReplyRequest, _ *mono.Msg) (PostBotReplyResponse, error) {
	msg, err := m.relay.PostBotReply(ctx, req.Text)
	if err != nil {
		return PostBotReplyResponse{}, err
	}
	return PostBotReplyResponse{Message: msg}, nil
}

func (m *Module) snapshot(ctx context.Context, _ SnapshotRequest, _ *mono.Msg) (SnapshotResponse, error) {
	snap, err := m.relay.Snapshot(ctx)
	if err != nil {
		return SnapshotResponse{}, err
	}
	return SnapshotResponse{Snapshot: snap}, nil
}

// MessagePosted publishes MessagePosted.v1.
func (m *Module) MessagePosted(msg chat.Message) {
	if m.eventBus == nil {
		return
	}
	if err := events.MessagePostedV1.Publish(m.eventBus, events.MessagePostedEvent{Message: msg}, nil); err != nil {
		m.logger.Warn("Failed to publish MessagePosted event", "messageID", msg.ID, "error", err)
	}
}

// UserJoined publishes UserJoined.v1.
func (m *Module) UserJoined(conn chat.Presence) {
	if m.eventBus == nil {
		return
	}
	event := events.UserJoinedEvent{
		ConnectionID: conn.ID,
		Username:     conn.Username,
		Timestamp:    time.Now().UnixMilli(),
	}
	if err := events.UserJoinedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserJoined event", "conn", conn.ID, "error", err)
	}
}

// UserLeft publishes UserLeft.v1.
func (m *Module) UserLeft(conn chat.Presence) {
	if m.eventBus == nil {
		return
	}
	event := events.UserLeftEvent{
		ConnectionID: conn.ID,
		Username:     conn.Username,
		Timestamp:    time.Now().UnixMilli(),
	}
	if err := events.UserLeftV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserLeft event", "conn", conn.ID, "error", err)
	}
}

// HandleMention publishes MentionRequested.v1 for the bot module.
func (m *Module) HandleMention(req chat.MentionRequest) {
	if m.eventBus == nil {
		m.logger.Warn("Mention dropped: no event bus", "messageID", req.Trigger.ID)
		return
	}
	if err := events.MentionRequestedV1.Publish(m.eventBus, events.MentionRequestedEvent{Request: req}, nil); err != nil {
		m.logger.Warn("Failed to publish MentionRequested event", "messageID", req.Trigger.ID, "error", err)
	}
}
