package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/fallback"
	"github.com/sideline-chat/sideline/internal/hub"
	"github.com/sideline-chat/sideline/internal/presence"
	"github.com/sideline-chat/sideline/internal/repository"
	"github.com/sideline-chat/sideline/pkg/jwt"
	"github.com/sideline-chat/sideline/pkg/log"
)

type chatService struct {
	hub       *hub.Hub
	tokens    *jwt.Manager
	users     repository.UserRepository
	messages  repository.MessageRepository
	presence  presence.Store
	responder *fallback.Responder
}

func NewChatService(
	h *hub.Hub,
	tokens *jwt.Manager,
	users repository.UserRepository,
	messages repository.MessageRepository,
	presenceStore presence.Store,
	responder *fallback.Responder,
) ChatService {
	return &chatService{
		hub:       h,
		tokens:    tokens,
		users:     users,
		messages:  messages,
		presence:  presenceStore,
		responder: responder,
	}
}

func (s *chatService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	// A connection authenticates at most once. Re-authenticating under a
	// different user would leave the old binding pointing at this handle.
	if c.Session.IsAuthenticated() {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "already authenticated",
		})
		return fmt.Errorf("connection %s already authenticated", c.ID)
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: err.Error(),
		})
		return fmt.Errorf("invalid token: %w", err)
	}

	c.Session.Authenticate(claims.UserID, claims.Username, claims.Email)
	s.hub.Bind(c)

	return c.SendMessage(&domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

// HandleSendMessage routes one inbound message: a single-shot decision
// between live delivery and the stand-in reply, based on a one-time
// snapshot of the recipient's presence.
func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, recipientID, text string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	if recipientID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "recipient_id is required"))
	}

	senderID := c.Session.GetUserID()
	l := log.Ctx(ctx).With().
		Str(log.FieldUserID, senderID).
		Str(log.FieldRecipientID, recipientID).
		Logger()

	exists, err := s.users.Exists(ctx, recipientID)
	if err != nil {
		l.Error().Err(err).Msg("recipient lookup failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to resolve recipient"))
	}
	if !exists {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnknownRecipient, "Recipient does not exist"))
	}

	status, err := s.presence.Get(ctx, recipientID)
	if err != nil {
		// Presence is best-effort; the durable live path is the safe default.
		l.Warn().Err(err).Msg("presence read failed, assuming available")
		status = domain.StatusAvailable
	}

	if status == domain.StatusBusy {
		return s.respondForBusyRecipient(ctx, c, recipientID, text)
	}
	return s.deliverLive(ctx, c, senderID, recipientID, text, l)
}

func (s *chatService) deliverLive(ctx context.Context, c *hub.Client, senderID, recipientID, text string, l zerolog.Logger) error {
	msg := &domain.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		l.Error().Err(err).Msg("message append failed")
		c.SendMessage(domain.NewErrorMessage(domain.ErrCodePersistenceFailure, "Failed to store message"))
		return err
	}

	out := &domain.ReceiveMessageOut{
		Type:      domain.MsgTypeReceiveMessage,
		SenderID:  senderID,
		Text:      text,
		Timestamp: msg.Timestamp.UnixMilli(),
	}

	// A recipient without a live connection is not an error: the record is
	// durable and retrievable through the history query.
	if delivered := s.hub.SendToUser(recipientID, out); !delivered {
		l.Debug().Str(log.FieldPresence, string(domain.StatusAvailable)).Msg("recipient offline, stored only")
	}

	// Echo to the sender's own connection, even if the recipient is offline.
	return c.SendMessage(out)
}

// respondForBusyRecipient answers on behalf of a busy recipient: the reply
// goes to the sender only and appears to originate from the recipient.
// Nothing is persisted on this path.
func (s *chatService) respondForBusyRecipient(ctx context.Context, c *hub.Client, recipientID, text string) error {
	reply := s.responder.Respond(ctx, text)

	return c.SendMessage(&domain.ReceiveMessageOut{
		Type:     domain.MsgTypeReceiveMessage,
		SenderID: recipientID,
		Text:     reply,
	})
}
