package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/repository"
	"github.com/sideline-chat/sideline/internal/service"
	"github.com/sideline-chat/sideline/pkg/log"
	"github.com/sideline-chat/sideline/pkg/middleware"
	"github.com/sideline-chat/sideline/pkg/response"
)

// HTTPHandler handles the REST surface: accounts, presence, history.
type HTTPHandler struct {
	userService    service.UserService
	historyService service.HistoryService
	authMiddleware *middleware.AuthMiddleware
	wsHandler      *WSHandler
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	userService service.UserService,
	historyService service.HistoryService,
	authMiddleware *middleware.AuthMiddleware,
	wsHandler *WSHandler,
) *HTTPHandler {
	return &HTTPHandler{
		userService:    userService,
		historyService: historyService,
		authMiddleware: authMiddleware,
		wsHandler:      wsHandler,
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		users := api.Group("/users")
		users.Use(h.authMiddleware.RequireAuth())
		{
			users.GET("/me", h.GetMe)
			users.PUT("/me/status", h.UpdateStatus)
		}

		messages := api.Group("/messages")
		messages.Use(h.authMiddleware.RequireAuth())
		{
			messages.GET("/:recipient_id", h.GetConversation)
		}
	}

	r.GET("/chat/ws", func(c *gin.Context) {
		h.wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	r.GET("/health", h.HealthCheck)
}

// Register handles user registration.
func (h *HTTPHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			response.Conflict(c, "email already exists")
			return
		}
		if errors.Is(err, repository.ErrUsernameExists) {
			response.Conflict(c, "username already exists")
			return
		}
		l.Error().Err(err).Msg("register failed")
		response.InternalError(c, "failed to register user")
		return
	}

	response.Created(c, result)
}

// Login handles user login.
func (h *HTTPHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, result)
}

// GetMe returns current user info with presence.
func (h *HTTPHandler) GetMe(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("get user failed")
		response.InternalError(c, "failed to get user")
		return
	}

	response.Success(c, user)
}

// UpdateStatus overwrites the caller's own presence status.
func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req domain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid status request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.userService.UpdateStatus(ctx, userID, req.Status); err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			response.BadRequest(c, "status must be AVAILABLE or BUSY")
			return
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("update status failed")
		response.InternalError(c, "failed to update status")
		return
	}

	response.Success(c, gin.H{"status": req.Status})
}

// GetConversation returns the persisted conversation between the caller
// and the given user, ascending by timestamp.
func (h *HTTPHandler) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	recipientID := c.Param("recipient_id")
	if recipientID == "" {
		response.BadRequest(c, "recipient_id is required")
		return
	}

	messages, err := h.historyService.GetConversation(ctx, userID, recipientID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRecipientID, recipientID).Msg("get conversation failed")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, gin.H{"messages": messages})
}

// HealthCheck reports liveness.
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
