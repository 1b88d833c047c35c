package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sideline-chat/sideline/internal/config"
	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/fallback"
	"github.com/sideline-chat/sideline/internal/hub"
	"github.com/sideline-chat/sideline/internal/presence"
	"github.com/sideline-chat/sideline/internal/repository"
	"github.com/sideline-chat/sideline/internal/service"
	"github.com/sideline-chat/sideline/pkg/jwt"
	"github.com/sideline-chat/sideline/pkg/middleware"
)

type nullGenerator struct{}

func (nullGenerator) Generate(_ context.Context, _ string, _ int) (string, error) {
	return "", nil
}

func newTestRouter(t *testing.T) (*gin.Engine, presence.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UserModel{}, &domain.MessageModel{}))

	userRepo := repository.NewGormUserRepository(db)
	msgRepo := repository.NewGormMessageRepository(db)
	store := presence.NewMemoryStore()
	tokens, err := jwt.NewManager("test-secret", time.Hour, "sideline")
	require.NoError(t, err)

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
	wsHub := hub.NewHub(wsCfg)
	go wsHub.Run()

	responder := fallback.NewResponder(nullGenerator{}, fallback.Config{Timeout: time.Second})
	chatSvc := service.NewChatService(wsHub, tokens, userRepo, msgRepo, store, responder)
	userSvc := service.NewUserService(userRepo, store, tokens)
	historySvc := service.NewHistoryService(userRepo, msgRepo)
	authMW := middleware.NewAuthMiddleware(tokens)
	wsHandler := NewWSHandler(wsHub, chatSvc, wsCfg)

	r := gin.New()
	NewHTTPHandler(userSvc, historySvc, authMW, wsHandler).RegisterRoutes(r)
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, email, username string) (id, token string) {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    email,
		"username": username,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.User.ID)
	require.NotEmpty(t, resp.Data.AccessToken)
	return resp.Data.User.ID, resp.Data.AccessToken
}

func TestRegisterLoginFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	_, _ = registerUser(t, r, "a@example.com", "alice")

	// Duplicate email conflicts.
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "a@example.com",
		"username": "alice2",
		"password": "secret123",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Login succeeds with the right password.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "a@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// And fails with the wrong one.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "a@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusUpdateRequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/api/v1/users/me/status", "", gin.H{"status": "BUSY"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusUpdateWritesPresence(t *testing.T) {
	r, store := newTestRouter(t)
	id, token := registerUser(t, r, "a@example.com", "alice")

	w := doJSON(t, r, http.MethodPut, "/api/v1/users/me/status", token, gin.H{"status": "BUSY"})
	require.Equal(t, http.StatusOK, w.Code)

	status, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBusy, status)

	// Unknown status values are rejected.
	w = doJSON(t, r, http.MethodPut, "/api/v1/users/me/status", token, gin.H{"status": "AWAY"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMeIncludesPresence(t *testing.T) {
	r, store := newTestRouter(t)
	id, token := registerUser(t, r, "a@example.com", "alice")

	require.NoError(t, store.Set(context.Background(), id, domain.StatusBusy))

	w := doJSON(t, r, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"BUSY"`)
}

func TestGetConversationUnknownUser(t *testing.T) {
	r, _ := newTestRouter(t)
	_, token := registerUser(t, r, "a@example.com", "alice")

	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/ghost", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetConversationEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	_, token := registerUser(t, r, "a@example.com", "alice")
	otherID, _ := registerUser(t, r, "b@example.com", "bob")

	w := doJSON(t, r, http.MethodGet, "/api/v1/messages/"+otherID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
