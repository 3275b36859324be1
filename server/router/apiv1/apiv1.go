// Package apiv1 exposes the chat dispatch core to the UI collaborator as a
// JSON/multipart HTTP API.
package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/52hzxgfy/chatbot/chat"
	"github.com/52hzxgfy/chatbot/chat/filelife"
	"github.com/52hzxgfy/chatbot/chat/provider"
	"github.com/52hzxgfy/chatbot/internal/profile"
)

// APIV1Service bundles the route handlers and their dependencies.
type APIV1Service struct {
	Profile *profile.Profile
	Chat    *chat.Service
}

func NewAPIV1Service(instanceProfile *profile.Profile, chatService *chat.Service) *APIV1Service {
	return &APIV1Service{
		Profile: instanceProfile,
		Chat:    chatService,
	}
}

// Register mounts all v1 routes.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/chat/turn", s.SendTurn)
	g.POST("/chat/test-connection", s.TestConnection)
	g.POST("/chat/generate", s.Generate)

	g.POST("/conversations/new", s.NewConversation)
	g.POST("/conversations/:id/load", s.LoadConversation)
	g.DELETE("/conversations/:id", s.DeleteConversation)

	g.GET("/providers", s.ListProviders)
}

// resolveAPIKey prefers the per-request credential and falls back to the
// operator default from the profile.
func (s *APIV1Service) resolveAPIKey(providerName, requestKey string) string {
	if requestKey != "" {
		return requestKey
	}
	return s.Profile.APIKeyFor(providerName)
}

// httpError maps the core's error taxonomy onto HTTP statuses. Validation
// failures carry their user-facing reason; provider and upload failures are
// reported as upstream errors with the underlying message attached.
func httpError(err error) *echo.HTTPError {
	if errors.Is(err, provider.ErrUnknownProvider) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var validationErr *filelife.ValidationError
	if errors.As(err, &validationErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Reason)
	}

	var uploadErr *filelife.UploadError
	if errors.As(err, &uploadErr) {
		return echo.NewHTTPError(http.StatusBadGateway, "file upload failed").SetInternal(err)
	}

	var providerErr *provider.Error
	if errors.As(err, &providerErr) {
		return echo.NewHTTPError(http.StatusBadGateway, providerErr.Message).SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "failed to process request").SetInternal(err)
}
