package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civichat/config"
	"civichat/internal/auth"
	"civichat/internal/handler"
	"civichat/internal/middleware"
	"civichat/internal/realtime"
	"civichat/internal/redis"
	"civichat/internal/transport/httpdto"
	"civichat/pkg/database"
	"civichat/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	db         *gorm.DB
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Call         *handler.CallHandler
	Presence     *handler.PresenceHandler
	Push         *handler.PushHandler
	WS           *realtime.Handler
}

func New(cfg *config.Config, l *logger.Logger, db *gorm.DB) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
		db:     db,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, verifier *auth.Verifier, msgLimiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(s.db); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	// The websocket handshake authenticates itself; the auth middleware
	// would reject query-param credentials before the upgrade.
	s.engine.GET("/ws", handlers.WS.Handle)

	authed := s.engine.Group("/v1", middleware.AuthMiddleware(verifier))
	{
		authed.GET("/conversations", handlers.Conversation.List)
		authed.GET("/conversations/:id", handlers.Conversation.Get)
		authed.POST("/conversations/direct", handlers.Conversation.CreateDirect)
		authed.POST("/conversations/group", handlers.Conversation.CreateGroup)
		authed.POST("/conversations/:id/read", handlers.Conversation.MarkRead)

		authed.GET("/conversations/:id/messages", handlers.Message.List)
		authed.POST("/conversations/:id/messages",
			middleware.MessageRateLimitMiddleware(msgLimiter), handlers.Message.Send)
		authed.PUT("/messages/:id", handlers.Message.Edit)
		authed.DELETE("/messages/:id", handlers.Message.Delete)

		authed.GET("/conversations/:id/calls", handlers.Call.History)
		authed.GET("/calls/:id/token", handlers.Call.JoinToken)

		authed.GET("/users/:id/presence", handlers.Presence.Get)

		authed.POST("/push/subscriptions", handlers.Push.Subscribe)
	}
}

// Start serves until SIGTERM/SIGINT, then drains with a bounded
// shutdown window. The onShutdown hook stops the hub and background
// workers before the listener closes.
func (s *Server) Start(onShutdown func()) error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down")
	}

	if onShutdown != nil {
		onShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
