package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/repository"
)

type historyServiceImpl struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	sf       singleflight.Group
}

// NewHistoryService creates a new history service.
func NewHistoryService(users repository.UserRepository, messages repository.MessageRepository) HistoryService {
	return &historyServiceImpl{
		users:    users,
		messages: messages,
	}
}

// GetConversation returns every persisted message between the two users in
// ascending timestamp order. Stand-in replies are never persisted, so they
// never appear here. Concurrent identical queries are collapsed.
func (s *historyServiceImpl) GetConversation(ctx context.Context, userID, otherID string) ([]domain.Message, error) {
	exists, err := s.users.Exists(ctx, otherID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation partner: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	key := conversationKey(userID, otherID)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.messages.GetConversation(ctx, userID, otherID)
	})
	if err != nil {
		return nil, err
	}

	return result.([]domain.Message), nil
}

// conversationKey is order-independent so both participants share one flight.
func conversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
