// Package config loads the relay configuration from defaults, an optional TOML
// file and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Relay   RelayConfig   `toml:"relay"`
	Bot     BotConfig     `toml:"bot"`
	Archive ArchiveConfig `toml:"archive"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Port               int     `toml:"port"`
	CORSAllowedOrigins string  `toml:"cors_allowed_origins"`
	MaxFrameBytes      int64   `toml:"max_frame_bytes"`
	RateLimit          float64 `toml:"rate_limit"` // inbound frames per second per connection
	RateBurst          int     `toml:"rate_burst"`
	SendBuffer         int     `toml:"send_buffer"` // outbound frames queued per connection
}

// RelayConfig configures the relay loop.
type RelayConfig struct {
	HistoryLimit  int           `toml:"history_limit"` // 0 keeps every message
	TypingTimeout time.Duration `toml:"typing_timeout"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	ContextWindow int           `toml:"context_window"`
}

// BotConfig configures the mention responder.
type BotConfig struct {
	Name         string        `toml:"name"`
	APIKey       string        `toml:"api_key"`
	Model        string        `toml:"model"`
	BaseURL      string        `toml:"base_url"`
	SystemPrompt string        `toml:"system_prompt"`
	StaticReply  string        `toml:"static_reply"` // used instead of the API when set
	Timeout      time.Duration `toml:"timeout"`
	MaxInFlight  int           `toml:"max_in_flight"`
}

// ArchiveConfig configures the SQLite transcript archive.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Debug   bool   `toml:"debug"`
}

// LogConfig configures application logging.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// MinFrameBytes is the smallest accepted server.max_frame_bytes. A
// message:send frame carrying 1000 characters, each JSON-escaped as a
// surrogate pair, is about 12 KiB.
const MinFrameBytes = 16 * 1024

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               3001,
			CORSAllowedOrigins: "http://localhost:3000",
			MaxFrameBytes:      64 * 1024,
			RateLimit:          10,
			RateBurst:          20,
			SendBuffer:         256,
		},
		Relay: RelayConfig{
			HistoryLimit:  500,
			TypingTimeout: 2 * time.Second,
			SweepInterval: 250 * time.Millisecond,
			ContextWindow: 20,
		},
		Bot: BotConfig{
			Name:        "ChatBot",
			Model:       "llama-3.3-70b-versatile",
			BaseURL:     "https://api.groq.com/openai/v1",
			Timeout:     30 * time.Second,
			MaxInFlight: 4,
		},
		Archive: ArchiveConfig{
			Path: "chat-archive.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path names an optional TOML file; when it is
// empty CHAT_CONFIG is consulted. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces settings with any environment variables that are set.
func (c *Config) ApplyEnvOverrides() error {
	var errs ValidateErrors

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid integer %q", v)})
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid duration %q", v)})
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: key, Message: fmt.Sprintf("invalid boolean %q", v)})
				return
			}
			*dst = b
		}
	}

	setInt("PORT", &c.Server.Port)
	setString("CORS_ALLOWED_ORIGINS", &c.Server.CORSAllowedOrigins)
	setInt("HISTORY_LIMIT", &c.Relay.HistoryLimit)
	setString("GROQ_API_KEY", &c.Bot.APIKey)
	setString("GROQ_MODEL", &c.Bot.Model)
	setString("GROQ_BASE_URL", &c.Bot.BaseURL)
	setString("BOT_NAME", &c.Bot.Name)
	setString("BOT_STATIC_REPLY", &c.Bot.StaticReply)
	setDuration("BOT_TIMEOUT", &c.Bot.Timeout)
	setBool("ARCHIVE_ENABLED", &c.Archive.Enabled)
	setString("ARCHIVE_PATH", &c.Archive.Path)
	setBool("DB_DEBUG", &c.Archive.Debug)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxFrameBytes < MinFrameBytes {
		add("server.max_frame_bytes", "must be at least %d, got %d", MinFrameBytes, c.Server.MaxFrameBytes)
	}
	if c.Server.RateLimit <= 0 {
		add("server.rate_limit", "must be positive")
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1")
	}
	if c.Server.SendBuffer < 1 {
		add("server.send_buffer", "must be at least 1")
	}

	if c.Relay.HistoryLimit < 0 {
		add("relay.history_limit", "must not be negative")
	}
	if c.Relay.TypingTimeout <= 0 {
		add("relay.typing_timeout", "must be positive")
	}
	if c.Relay.SweepInterval <= 0 {
		add("relay.sweep_interval", "must be positive")
	} else if c.Relay.TypingTimeout > 0 && c.Relay.SweepInterval > c.Relay.TypingTimeout {
		add("relay.sweep_interval", "must not exceed typing_timeout")
	}
	if c.Relay.ContextWindow < 1 {
		add("relay.context_window", "must be at least 1")
	}

	if strings.TrimSpace(c.Bot.Name) == "" {
		add("bot.name", "must not be empty")
	}
	if c.Bot.Timeout <= 0 {
		add("bot.timeout", "must be positive")
	}
	if c.Bot.MaxInFlight < 1 {
		add("bot.max_in_flight", "must be at least 1")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		add("archive.path", "required when the archive is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "must be text or json")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
