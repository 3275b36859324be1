package apiv1

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/52hzxgfy/chatbot/chat"
	"github.com/52hzxgfy/chatbot/chat/filelife"
	"github.com/52hzxgfy/chatbot/chat/model"
	"github.com/52hzxgfy/chatbot/chat/provider"
)

type turnRequestBody struct {
	ConversationID string          `json:"conversationId" form:"conversationId"`
	Provider       string          `json:"provider" form:"provider"`
	APIKey         string          `json:"apiKey" form:"apiKey"`
	Text           string          `json:"text" form:"text"`
	SystemPrompt   string          `json:"systemPrompt" form:"systemPrompt"`
	Prior          []model.Message `json:"prior"`
	// PriorJSON carries the prior message list on the multipart path, where
	// nested values arrive as a string field.
	PriorJSON string `form:"prior"`
}

// SendTurn submits one user turn. Plain turns are JSON; turns with an
// attachment are multipart with the file under the "file" field.
func (s *APIV1Service) SendTurn(c echo.Context) error {
	var body turnRequestBody
	var attachment *filelife.Attachment

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed form").SetInternal(err)
		}
		if body.PriorJSON != "" {
			if err := json.Unmarshal([]byte(body.PriorJSON), &body.Prior); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "malformed prior messages").SetInternal(err)
			}
		}
		att, err := readAttachment(c)
		if err != nil {
			return err
		}
		attachment = att
	} else {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
		}
	}

	if body.Provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}

	result, err := s.Chat.SendTurn(c.Request().Context(), &chat.TurnRequest{
		ConversationID: body.ConversationID,
		Provider:       body.Provider,
		APIKey:         s.resolveAPIKey(body.Provider, body.APIKey),
		Text:           body.Text,
		SystemPrompt:   body.SystemPrompt,
		Attachment:     attachment,
		Prior:          body.Prior,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// readAttachment extracts the optional uploaded file from a multipart turn.
func readAttachment(c echo.Context) (*filelife.Attachment, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed file field").SetInternal(err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // cleanup

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
	}

	return &filelife.Attachment{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get(echo.HeaderContentType),
		Data:     data,
	}, nil
}

type testConnectionBody struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// TestConnection performs the provider's minimal authenticated call and
// reports reachability as a boolean.
func (s *APIV1Service) TestConnection(c echo.Context) error {
	var body testConnectionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	ok, err := s.Chat.TestProviderConnection(c.Request().Context(), body.Provider, s.resolveAPIKey(body.Provider, body.APIKey))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"connected": ok})
}

type generateBody struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	Prompt   string `json:"prompt"`
}

// Generate performs a stateless one-shot generation outside any session.
func (s *APIV1Service) Generate(c echo.Context) error {
	var body generateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if body.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	text, err := s.Chat.GenerateOnce(c.Request().Context(), body.Provider, s.resolveAPIKey(body.Provider, body.APIKey), body.Prompt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"text": text})
}

type newConversationBody struct {
	PreviousID string `json:"previousId"`
}

// NewConversation releases the previously active conversation's session.
// The new conversation id itself is assigned lazily, on the first turn.
func (s *APIV1Service) NewConversation(c echo.Context) error {
	var body newConversationBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	s.Chat.NewConversation(body.PreviousID)
	return c.NoContent(http.StatusNoContent)
}

type loadConversationBody struct {
	Provider string          `json:"provider"`
	APIKey   string          `json:"apiKey"`
	Messages []model.Message `json:"messages"`
}

// LoadConversation recreates the session for a stored conversation, seeded
// with the UI's message list.
func (s *APIV1Service) LoadConversation(c echo.Context) error {
	var body loadConversationBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	err := s.Chat.LoadConversation(c.Request().Context(), c.Param("id"), body.Provider, s.resolveAPIKey(body.Provider, body.APIKey), body.Messages)
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteConversation drops the conversation's pooled session.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	s.Chat.RemoveConversation(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// ListProviders returns the closed provider set the UI can offer.
func (s *APIV1Service) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"providers": provider.Names()})
}
