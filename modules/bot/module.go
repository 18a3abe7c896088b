package bot

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/collab-chat-relay/events"
	"github.com/example/collab-chat-relay/modules/relay"
)

// Module answers bot mentions. It consumes MentionRequested events and posts
// replies through the relay's post-bot-reply service.
type Module struct {
	generator Generator
	cfg       ResponderConfig
	relayPort relay.RelayPort
	responder *Responder
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the bot module.
func NewModule(generator Generator, cfg ResponderConfig, logger types.Logger) *Module {
	return &Module{
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "bot"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"relay"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "relay":
		m.relayPort = relay.NewRelayAdapter(container)
	}
}

// RegisterEventConsumers subscribes to mention events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MentionRequestedV1, m.handleMentionRequested, m,
	); err != nil {
		return fmt.Errorf("failed to register MentionRequested consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"MentionRequested"})
	return nil
}

// Start creates the responder.
func (m *Module) Start(_ context.Context) error {
	if m.relayPort == nil {
		return fmt.Errorf("relay dependency not set")
	}
	if m.generator == nil {
		return fmt.Errorf("bot generator not set")
	}

	m.responder = NewResponder(m.generator, m.relayPort, m.cfg, m.logger)
	m.logger.Info("Bot module started", "timeout", m.responder.timeout)
	return nil
}

// Stop waits for in-flight replies.
func (m *Module) Stop(ctx context.Context) error {
	if m.responder == nil {
		return nil
	}
	if err := m.responder.Close(ctx); err != nil {
		return err
	}
	m.logger.Info("Bot module stopped", "posted", m.responder.Stats().Posted)
	return nil
}

// Health reports reply counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.responder == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "not started",
		}
	}

	stats := m.responder.Stats()
	details := map[string]any{
		"in_flight": stats.InFlight,
		"posted":    stats.Posted,
		"failed":    stats.Failed,
		"dropped":   stats.Dropped,
	}
	if c, ok := m.generator.(*GroqClient); ok {
		details["model"] = c.Model()
		details["configured"] = c.IsConfigured()
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) handleMentionRequested(_ context.Context, event events.MentionRequestedEvent, _ *mono.Msg) error {
	if m.responder == nil {
		m.logger.Warn("Mention received before start", "messageID", event.Request.Trigger.ID)
		return nil
	}
	if err := m.responder.HandleMention(event.Request); err != nil {
		m.logger.Warn("Mention dropped", "messageID", event.Request.Trigger.ID, "error", err)
	}
	return nil
}
