package repository

import (
	"context"
	"errors"

	"github.com/sideline-chat/sideline/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

// UserRepository defines the interface for user storage.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Exists reports whether a user with the given ID exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// MessageRepository is the durable append-only message store. Appends assign
// the record timestamp; timestamps are monotonically non-decreasing per store.
type MessageRepository interface {
	// Append durably writes a message record, assigning its timestamp.
	Append(ctx context.Context, msg *domain.Message) error

	// GetConversation returns all messages between the two users, in either
	// direction, ordered by timestamp ascending (insertion order on ties).
	GetConversation(ctx context.Context, userA, userB string) ([]domain.Message, error)
}
