package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sideline-chat/sideline/internal/config"
	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/fallback"
	"github.com/sideline-chat/sideline/internal/handler"
	"github.com/sideline-chat/sideline/internal/hub"
	"github.com/sideline-chat/sideline/internal/llm"
	"github.com/sideline-chat/sideline/internal/presence"
	"github.com/sideline-chat/sideline/internal/repository"
	"github.com/sideline-chat/sideline/internal/service"
	"github.com/sideline-chat/sideline/pkg/database"
	"github.com/sideline-chat/sideline/pkg/jwt"
	pkglog "github.com/sideline-chat/sideline/pkg/log"
	"github.com/sideline-chat/sideline/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "sideline",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.UserModel{}, &domain.MessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Initialize repositories
	userRepo := repository.NewGormUserRepository(db)
	msgRepo := repository.NewGormMessageRepository(db)

	// Initialize presence store
	var presenceStore presence.Store
	if cfg.Redis.Enabled {
		presenceStore, err = presence.NewRedisStore(presence.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis presence store connected")
	} else {
		presenceStore = presence.NewMemoryStore()
		logger.Info().Msg("using in-memory presence store")
	}
	defer presenceStore.Close()

	// Initialize JWT manager
	jwtManager, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}

	// Initialize reply generator and responder
	var genOpts []llm.Option
	if cfg.Generator.BaseURL != "" {
		genOpts = append(genOpts, llm.WithBaseURL(cfg.Generator.BaseURL))
	}
	generator, err := llm.NewClient(cfg.Generator.APIKey, cfg.Generator.Model, genOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create reply generator")
	}
	responder := fallback.NewResponder(generator, cfg.Generator.Fallback)

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Initialize services
	chatService := service.NewChatService(wsHub, jwtManager, userRepo, msgRepo, presenceStore, responder)
	userService := service.NewUserService(userRepo, presenceStore, jwtManager)
	historyService := service.NewHistoryService(userRepo, msgRepo)

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	wsHandler := handler.NewWSHandler(wsHub, chatService, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(userService, historyService, authMiddleware, wsHandler)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("sideline starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("sideline stopped")
}
