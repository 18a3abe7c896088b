package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/collab-chat-relay/domain/chat"
	"github.com/example/collab-chat-relay/events"
)

// Module mirrors posted chat messages into SQLite for transcripts. The relay
// never reads the archive back.
type Module struct {
	db     *gorm.DB
	repo   *Repository
	dbPath string
	debug  bool
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the archive module backed by the SQLite file at dbPath.
func NewModule(dbPath string, debug bool, logger types.Logger) *Module {
	if dbPath == "" {
		dbPath = "chat-archive.db"
	}
	return &Module{
		dbPath: dbPath,
		debug:  debug,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "archive"
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	logLevel := logger.Silent
	if m.debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&ArchivedMessage{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.db = db
	m.repo = NewRepository(db)
	m.logger.Info("Archive module started", "path", m.dbPath)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Archive module stopped")
	return nil
}

// Health pings the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	count, err := m.repo.Count(ctx)
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("archive count failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":   "sqlite",
			"path":     m.dbPath,
			"messages": count,
		},
	}
}

// RegisterEventConsumers subscribes to posted messages.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagePostedV1, m.handleMessagePosted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}
	return nil
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecent, json.Unmarshal, json.Marshal, m.recent,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecent, err)
	}
	return nil
}

func (m *Module) handleMessagePosted(ctx context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.Save(ctx, FromMessage(event.Message)); err != nil {
		m.logger.Error("Failed to archive message", "messageID", event.Message.ID, "error", err)
		return nil
	}
	m.logger.Debug("Archived message", "messageID", event.Message.ID)
	return nil
}

func (m *Module) recent(ctx context.Context, req RecentRequest, _ *mono.Msg) (RecentResponse, error) {
	if m.repo == nil {
		return RecentResponse{}, fmt.Errorf("archive not started")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := m.repo.Recent(ctx, req.Username, limit)
	if err != nil {
		return RecentResponse{}, err
	}
	total, err := m.repo.Count(ctx)
	if err != nil {
		return RecentResponse{}, err
	}

	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.Message())
	}
	return RecentResponse{Messages: messages, Total: total}, nil
}
