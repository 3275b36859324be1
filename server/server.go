// Package server wires the chat dispatch core to its HTTP surface.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/52hzxgfy/chatbot/chat"
	"github.com/52hzxgfy/chatbot/internal/profile"
	"github.com/52hzxgfy/chatbot/server/router/apiv1"
)

// Server hosts the JSON/multipart API the browser UI talks to.
type Server struct {
	Profile *profile.Profile
	Chat    *chat.Service

	echoServer *echo.Echo
}

// NewServer assembles the echo instance and registers all routes.
func NewServer(_ context.Context, instanceProfile *profile.Profile, chatService *chat.Service) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))

	s := &Server{
		Profile:    instanceProfile,
		Chat:       chatService,
		echoServer: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	if instanceProfile.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(chatService.Metrics()))
	}

	apiv1.NewAPIV1Service(instanceProfile, chatService).Register(e)

	return s, nil
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start(_ context.Context) error {
	return s.echoServer.Start(s.Profile.ListenAddr())
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("chatbot stopped properly")
}
