package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/collab-chat-relay/config"
	"github.com/example/collab-chat-relay/modules/api"
	"github.com/example/collab-chat-relay/modules/archive"
	"github.com/example/collab-chat-relay/modules/bot"
	"github.com/example/collab-chat-relay/modules/relay"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $CHAT_CONFIG)")
	flag.Parse()

	log.Println("=== Collab Chat Relay - Fiber + EventBus ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := mono.LogLevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = mono.LogLevelDebug
	case "warn":
		logLevel = mono.LogLevelWarn
	case "error":
		logLevel = mono.LogLevelError
	}
	logFormat := mono.LogFormatText
	if strings.ToLower(cfg.Log.Format) == "json" {
		logFormat = mono.LogFormatJSON
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(logFormat),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	relayModule := relay.NewModule(app.Logger(),
		relay.WithHistoryLimit(cfg.Relay.HistoryLimit),
		relay.WithTypingTimeout(cfg.Relay.TypingTimeout),
		relay.WithSweepInterval(cfg.Relay.SweepInterval),
		relay.WithContextWindow(cfg.Relay.ContextWindow),
		relay.WithBotName(cfg.Bot.Name),
		relay.WithLogger(newSlogLogger(cfg.Log)),
	)
	botModule := bot.NewModule(newGenerator(cfg.Bot), bot.ResponderConfig{
		Timeout:     cfg.Bot.Timeout,
		MaxInFlight: cfg.Bot.MaxInFlight,
	}, app.Logger())
	apiModule := api.NewModule(api.Config{
		Addr:          cfg.Addr(),
		AllowOrigins:  cfg.Server.CORSAllowedOrigins,
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
		SendBuffer:    cfg.Server.SendBuffer,
		Archive:       cfg.Archive.Enabled,
	}, app.Logger())

	// Websocket sinks live in this process, so the relay is handed over
	// directly instead of through the service container.
	apiModule.SetRelay(relayModule.Relay())

	// Register modules with the framework.
	// - relay: Single-actor chat state (ServiceProviderModule + EventEmitterModule)
	// - archive: Optional SQLite transcript (EventConsumerModule + ServiceProviderModule)
	// - bot: Mention responder (EventConsumerModule, depends on relay)
	// - api: Driving adapter (Fiber HTTP/WebSocket server, depends on relay)
	app.Register(relayModule)
	if cfg.Archive.Enabled {
		app.Register(archive.NewModule(cfg.Archive.Path, cfg.Archive.Debug, app.Logger()))
	}
	app.Register(botModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// newGenerator picks the reply generator: a fixed reply when one is
// configured, otherwise the Groq client. Without an API key the client fails
// every request and the bot stays silent.
func newGenerator(cfg config.BotConfig) bot.Generator {
	if cfg.StaticReply != "" {
		return bot.StaticGenerator{Reply: cfg.StaticReply}
	}

	client := bot.NewGroqClient(cfg.APIKey).
		WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model)
	if cfg.SystemPrompt != "" {
		client = client.WithSystemPrompt(cfg.SystemPrompt)
	}
	if !client.IsConfigured() {
		log.Println("WARNING: GROQ_API_KEY is not set, @chatbot mentions will go unanswered")
	}
	return client
}

// newSlogLogger builds the relay loop's logger from the same settings.
func newSlogLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)).With("module", "relay")
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)).With("module", "relay")
}

func printStartupInfo(cfg *config.Config) {
	port := cfg.Server.Port

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Relay: single event loop owning users, messages and typing state")
	log.Println("  - Event Bus: embedded NATS (MessagePosted, UserJoined, UserLeft, MentionRequested)")
	log.Printf("  - Bot: %s (timeout %s, max in-flight %d)", cfg.Bot.Name, cfg.Bot.Timeout, cfg.Bot.MaxInFlight)
	if cfg.Archive.Enabled {
		log.Printf("  - Archive: SQLite at %s", cfg.Archive.Path)
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", port)
	log.Println("  GET    /health             - Health check")
	log.Println("  GET    /api/v1/history     - Recent messages (?limit=)")
	log.Println("  GET    /api/v1/users       - Joined users and who is typing")
	if cfg.Archive.Enabled {
		log.Println("  GET    /api/v1/archive     - Archived transcript (?username=&limit=)")
	}
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", port)
	log.Println(`  Frames: {"event":"user:join","data":"alice"}`)
	log.Println("  Events in:  user:join, message:send, user:typing, user:stop-typing")
	log.Println("  Events out: message:history, message:new, users:list, user:joined, user:left,")
	log.Println("              user:typing, user:stop-typing, error")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
