package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/52hzxgfy/chatbot/chat/history"
)

const (
	groqBaseURL        = "https://api.groq.com/openai/v1"
	groqModel          = "llama-3.1-70b-versatile"
	siliconflowBaseURL = "https://api.siliconflow.cn/v1"
	siliconflowModel   = "Qwen/Qwen2.5-72B-Instruct"

	chatTemperature = 0.7
	chatMaxTokens   = 2048
)

// openAIChatService adapts providers that speak the OpenAI chat-completion
// protocol. Unlike Gemini these model the system prompt as a dedicated
// message role, so it is passed as configuration rather than a priming turn
// and never enters the session history.
type openAIChatService struct {
	client *openai.Client
	name   string
	model  string

	mu      sync.Mutex
	history []history.Entry
}

var _ Service = (*openAIChatService)(nil)

func newGroqService(apiKey string) *openAIChatService {
	return newOpenAIChatService(Llama, groqModel, groqBaseURL, apiKey)
}

func newQwenService(apiKey string) *openAIChatService {
	return newOpenAIChatService(Qwen, siliconflowModel, siliconflowBaseURL, apiKey)
}

func newOpenAIChatService(name, model, baseURL, apiKey string) *openAIChatService {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient()

	return &openAIChatService{
		client: openai.NewClientWithConfig(clientConfig),
		name:   name,
		model:  model,
	}
}

func (s *openAIChatService) Name() string { return s.name }

func (s *openAIChatService) TestConnection(ctx context.Context) bool {
	if _, err := s.client.ListModels(ctx); err != nil {
		slog.Debug("connection test failed", "provider", s.name, "error", err)
		return false
	}
	return true
}

func (s *openAIChatService) SendMessage(ctx context.Context, text, systemPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]openai.ChatCompletionMessage, 0, len(s.history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, entriesToChatMessages(s.history)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return "", err
	}

	s.history = append(s.history,
		history.NewEntry(history.RoleUser, text),
		history.NewEntry(history.RoleModel, reply),
	)
	return reply, nil
}

func (s *openAIChatService) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

func (s *openAIChatService) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
		Messages:    messages,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Message: "empty response from model"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *openAIChatService) History() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Entry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *openAIChatService) ReplaceHistory(entries []history.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]history.Entry, len(entries))
	copy(s.history, entries)
}

func entriesToChatMessages(entries []history.Entry) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(entries))
	for _, e := range entries {
		role := openai.ChatMessageRoleUser
		if e.Role == history.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		var content string
		if len(e.Parts) > 0 {
			content = e.Parts[0].Text
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return messages
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	return &Error{Message: err.Error()}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
