// Package web exposes the messaging core over HTTP: REST commands plus an
// SSE bridge for the channel event stream.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/zenmed/carechat/internal/auth"
	"github.com/zenmed/carechat/internal/chat"
	"github.com/zenmed/carechat/internal/config"
	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/events"
	"github.com/zenmed/carechat/internal/middleware"
)

// Server wires the echo instance with the chat service and its collaborators.
type Server struct {
	echo   *echo.Echo
	svc    *chat.Service
	dir    data.Directory
	jwt    *auth.JWTManager
	bus    events.Bus
	config *config.Config
}

// NewServer builds the HTTP server around the given service.
func NewServer(svc *chat.Service, dir data.Directory, jwtMgr *auth.JWTManager, bus events.Bus, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	return &Server{
		echo:   e,
		svc:    svc,
		dir:    dir,
		jwt:    jwtMgr,
		bus:    bus,
		config: cfg,
	}
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.WebPort)
	slog.Info("web server starting", "port", s.config.WebPort)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("web server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", s.handleHealth)

	// Login is the only unauthenticated endpoint; key the limiter by the
	// claimed email so account probing is throttled per account.
	loginLimiter := middleware.NewLimiterStore(s.config.LoginRPM, 3, time.Minute)
	api.POST("/login", s.handleLogin, middleware.RateLimit(loginLimiter, loginKey))

	authed := api.Group("", s.requireAuth)
	authed.GET("/me", s.handleMe)
	authed.GET("/unread", s.handleUnread)
	authed.GET("/channels", s.handleListChannels)
	authed.POST("/channels", s.handleCreateChannel)
	authed.GET("/channels/:id", s.handleGetChannel)
	authed.GET("/channels/:id/messages", s.handleGetMessages)
	authed.POST("/channels/:id/messages", s.handleSendMessage)
	authed.POST("/channels/:id/read", s.handleMarkRead)
	authed.POST("/channels/:id/typing", s.handleTyping)
	authed.POST("/channels/:id/close", s.handleCloseChannel)
	authed.GET("/channels/:id/events", s.handleEvents)
}
