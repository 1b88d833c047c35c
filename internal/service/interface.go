package service

import (
	"context"

	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/hub"
)

// ChatService handles websocket-level chat operations.
type ChatService interface {
	HandleAuth(ctx context.Context, client *hub.Client, token string) error
	HandleSendMessage(ctx context.Context, client *hub.Client, recipientID, text string) error
}

// UserService handles accounts and presence status.
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	GetUser(ctx context.Context, userID string) (*domain.UserResponse, error)
	UpdateStatus(ctx context.Context, userID string, status domain.Status) error
}

// HistoryService serves the persisted-message history query.
type HistoryService interface {
	GetConversation(ctx context.Context, userID, otherID string) ([]domain.Message, error)
}
