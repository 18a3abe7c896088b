package archive

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides access to the message archive.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new archive repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save stores a message. Saving the same id twice keeps the first copy.
func (r *Repository) Save(ctx context.Context, msg *ArchivedMessage) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg).Error
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first. A non-empty
// username restricts the result to that author.
func (r *Repository) Recent(ctx context.Context, username string, limit int) ([]*ArchivedMessage, error) {
	query := r.db.WithContext(ctx).Model(&ArchivedMessage{})
	if username != "" {
		query = query.Where("username = ?", username)
	}

	var messages []*ArchivedMessage
	if err := query.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load archived messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// Count returns the number of archived messages.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ArchivedMessage{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count archived messages: %w", err)
	}
	return count, nil
}
