package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	nanoid "github.com/jaevor/go-nanoid"

	"github.com/example/collab-chat-relay/modules/archive"
	"github.com/example/collab-chat-relay/modules/relay"
)

// Config configures the HTTP and websocket server.
type Config struct {
	Addr          string
	AllowOrigins  string
	MaxFrameBytes int64
	RateLimit     float64 // inbound frames per second per connection
	RateBurst     int
	SendBuffer    int
	Archive       bool // depend on the archive module and serve /api/v1/archive
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":3001",
		AllowOrigins:  "http://localhost:3000",
		MaxFrameBytes: 64 * 1024,
		RateLimit:     10,
		RateBurst:     20,
		SendBuffer:    256,
	}
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	cfg       Config
	app       *fiber.App
	listener  net.Listener
	hub       *Hub
	relay     *relay.Relay
	relayPort relay.RelayPort
	archive   archive.ArchivePort
	newID     func() string
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg Config, moduleLogger types.Logger) *APIModule {
	return &APIModule{
		cfg:    cfg,
		hub:    NewHub(),
		logger: moduleLogger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	if m.cfg.Archive {
		return []string{"relay", "archive"}
	}
	return []string{"relay"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "relay":
		m.relayPort = relay.NewRelayAdapter(container)
	case "archive":
		m.archive = archive.NewArchiveAdapter(container)
	}
}

// SetRelay hands the module the in-process relay that websocket connections
// attach to. Sinks cannot cross the service container, so main wires this
// directly.
func (m *APIModule) SetRelay(r *relay.Relay) {
	m.relay = r
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.relay == nil {
		return fmt.Errorf("relay dependency not set")
	}
	if m.relayPort == nil {
		return fmt.Errorf("relay adapter dependency not set")
	}
	if m.cfg.Archive && m.archive == nil {
		return fmt.Errorf("archive adapter dependency not set")
	}

	gen, err := nanoid.Standard(21)
	if err != nil {
		return fmt.Errorf("failed to create connection id generator: %w", err)
	}
	m.newID = gen

	m.app = m.newApp()

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}
	m.listener = ln

	go func() {
		if err := m.app.Listener(ln); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop closes every websocket client and shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	closed := m.hub.CloseAll()
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped", "closed_clients", closed)
	return nil
}

// Addr returns the address the server is listening on, or "" before Start.
func (m *APIModule) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr":              m.Addr(),
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Collab Chat Relay",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Next:   websocket.IsWebSocketUpgrade,
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
