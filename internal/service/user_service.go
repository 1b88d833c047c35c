package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/sideline-chat/sideline/internal/audit"
	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/presence"
	"github.com/sideline-chat/sideline/internal/repository"
	"github.com/sideline-chat/sideline/pkg/jwt"
	"github.com/sideline-chat/sideline/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidStatus      = errors.New("invalid presence status")
)

type userServiceImpl struct {
	repo     repository.UserRepository
	presence presence.Store
	tokens   *jwt.Manager
}

// NewUserService creates a new user service.
func NewUserService(repo repository.UserRepository, presenceStore presence.Store, tokens *jwt.Manager) UserService {
	return &userServiceImpl{
		repo:     repo,
		presence: presenceStore,
		tokens:   tokens,
	}
}

// Register registers a new user. New accounts are AVAILABLE by default;
// the presence store's default covers users who never set a status.
func (s *userServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate token after register")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")

	return &domain.AuthResponse{
		User:        user.ToResponse(),
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Login authenticates a user.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate token after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")

	return &domain.AuthResponse{
		User:        user.ToResponse(),
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// GetUser returns the user's profile with their current presence.
func (s *userServiceImpl) GetUser(ctx context.Context, userID string) (*domain.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	resp := user.ToResponse()
	if status, err := s.presence.Get(ctx, userID); err == nil {
		resp.Status = status
	}
	return &resp, nil
}

// UpdateStatus overwrites the caller's presence. Only the authenticated
// owner reaches this; the handler enforces it.
func (s *userServiceImpl) UpdateStatus(ctx context.Context, userID string, status domain.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	if err := s.presence.Set(ctx, userID, status); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to set presence")
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionStatusChange, userID, string(status), "presence updated")
	return nil
}
