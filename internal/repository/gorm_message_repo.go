package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sideline-chat/sideline/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB

	// lastTS guards against wall-clock regressions so that timestamps
	// assigned by this store never decrease.
	mu     sync.Mutex
	lastTS time.Time
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append durably writes a message record, assigning its timestamp at
// creation time.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	msg.Timestamp = r.nextTimestamp()

	model := domain.MessageToModel(msg)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("append message: %w", result.Error)
	}

	msg.ID = model.ID
	return nil
}

// GetConversation returns all messages exchanged between userA and userB,
// in either direction, ordered by timestamp ascending with insertion order
// breaking ties.
func (r *GormMessageRepository) GetConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("query conversation: %w", result.Error)
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *models[i].ToDomain())
	}
	return messages, nil
}

func (r *GormMessageRepository) nextTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(r.lastTS) {
		now = r.lastTS
	}
	r.lastTS = now
	return now
}
