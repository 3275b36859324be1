// Package chat is the multi-provider chat-session dispatch layer: it
// resolves the provider session for each conversation, prepares attached
// files, sends the turn under the retry policy, and keeps the pooled history
// in sync with the UI's message list.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/52hzxgfy/chatbot/chat/filelife"
	"github.com/52hzxgfy/chatbot/chat/history"
	"github.com/52hzxgfy/chatbot/chat/metrics"
	"github.com/52hzxgfy/chatbot/chat/model"
	"github.com/52hzxgfy/chatbot/chat/pool"
	"github.com/52hzxgfy/chatbot/chat/provider"
	"github.com/52hzxgfy/chatbot/chat/retry"
)

const (
	defaultFilePrompt  = "请分析这个文件的内容"
	defaultAudioPrompt = "请分析这个音频文件的内容"
)

// Config assembles a Service. Zero values select production defaults.
type Config struct {
	Retry   retry.Policy
	Files   filelife.Config
	Metrics *metrics.Exporter
	// Providers overrides the adapter factory. Tests substitute fakes here;
	// leave nil for the real provider registry.
	Providers pool.Factory
}

// Service is the inbound surface the UI collaborator drives.
type Service struct {
	pool     *pool.Pool
	files    *filelife.Manager
	retry    retry.Policy
	metrics  *metrics.Exporter
	provider pool.Factory

	// inflight serializes turns per conversation so submissions for one
	// conversation are processed strictly in order, independent of any
	// gating the UI layer does.
	inflight sync.Map // conversation id -> *sync.Mutex
}

// NewService creates the dispatch service. It is constructed once at process
// start and shared by reference.
func NewService(cfg Config) *Service {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewExporter(metrics.DefaultConfig())
	}
	if cfg.Providers == nil {
		cfg.Providers = provider.New
	}
	return &Service{
		pool:     pool.NewWithFactory(cfg.Providers),
		files:    filelife.NewManager(cfg.Files),
		retry:    cfg.Retry,
		metrics:  cfg.Metrics,
		provider: cfg.Providers,
	}
}

// Metrics returns the service's exporter for mounting on an HTTP route.
func (s *Service) Metrics() *metrics.Exporter { return s.metrics }

// Pool exposes the session pool. Intended for inspection and tests.
func (s *Service) Pool() *pool.Pool { return s.pool }

// TurnRequest is one user submission.
type TurnRequest struct {
	// ConversationID is empty for the first turn of a new conversation.
	ConversationID string
	Provider       string
	APIKey         string
	Text           string
	SystemPrompt   string
	Attachment     *filelife.Attachment
	// Prior is the UI's message list for an existing conversation; it seeds
	// the session history only when the session is first created.
	Prior []model.Message
}

// TurnResult is the completed exchange returned to the UI.
type TurnResult struct {
	ConversationID   string        `json:"conversationId"`
	Title            string        `json:"title,omitempty"`
	Reply            string        `json:"reply"`
	UserMessage      model.Message `json:"userMessage"`
	AssistantMessage model.Message `json:"assistantMessage"`
}

// SendTurn processes one user turn end to end: session resolution, optional
// file preparation, the provider call under the retry policy, and the
// history resync. A new conversation id is assigned and returned when the
// request carries none.
func (s *Service) SendTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req.Text == "" && req.Attachment == nil {
		return nil, &filelife.ValidationError{Reason: "empty turn: text or attachment required"}
	}

	assignedNew := req.ConversationID == ""
	conversationID := req.ConversationID
	if assignedNew {
		conversationID = model.NewConversationID()
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	sess, err := s.pool.GetOrCreate(ctx, conversationID, req.Provider, req.APIKey, req.Prior)
	if err != nil {
		return nil, err
	}
	s.metrics.SetPooledSessions(s.pool.Size())

	content := req.Text
	var reply string
	start := time.Now()

	if req.Attachment != nil {
		content = formatAttachmentContent(req.Attachment, req.Text)
		reply, err = s.sendWithFile(ctx, sess, req)
	} else {
		reply, err = retry.Do(ctx, s.retry, func() (string, error) {
			return sess.Handle.SendMessage(ctx, content, req.SystemPrompt)
		}, s.onRetry(req.Provider))
		s.metrics.RecordTurn(req.Provider, time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}

	userMessage := model.NewUserMessage(content)
	assistantMessage := model.NewAssistantMessage(strings.TrimSpace(reply))

	all := append(slices.Clone(req.Prior), userMessage, assistantMessage)
	if !s.pool.UpdateHistory(conversationID, history.ToProviderHistory(all)) {
		// Conversation was deleted while the turn was in flight: drop the
		// result instead of writing state for a dead conversation.
		slog.Warn("conversation gone after turn completed; discarding history sync",
			"conversation_id", conversationID,
		)
	}

	result := &TurnResult{
		ConversationID:   conversationID,
		Reply:            assistantMessage.Content,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}
	if assignedNew {
		result.Title = model.DeriveTitle(userMessage.Content)
	}
	return result, nil
}

// sendWithFile routes an attachment turn through validation, inline/remote
// preparation and the multimodal provider call.
func (s *Service) sendWithFile(ctx context.Context, sess *pool.Session, req *TurnRequest) (string, error) {
	att := req.Attachment

	mm, ok := sess.Handle.(provider.Multimodal)
	if !ok {
		return "", &filelife.ValidationError{
			Reason: fmt.Sprintf("file processing is only supported by %s", provider.Gemini),
		}
	}
	store, ok := sess.Handle.(provider.FileStore)
	if !ok {
		return "", &filelife.ValidationError{
			Reason: fmt.Sprintf("provider %s has no file storage", sess.ProviderName),
		}
	}

	if err := s.files.Validate(att); err != nil {
		return "", err
	}

	prompt := req.Text
	if att.IsAudio() {
		if err := s.files.ValidateAudio(ctx, att); err != nil {
			return "", err
		}
		if prompt == "" {
			prompt = defaultAudioPrompt
		}
		prompt = filelife.BuildAudioPrompt(prompt, filelife.AudioOptions{
			Transcribe: filelife.WantsTranscription(req.Text),
			TimeRange:  filelife.ExtractTimeRange(req.Text),
		})
	} else if prompt == "" {
		prompt = defaultFilePrompt
	}

	part, remote, err := s.files.Prepare(ctx, store, att)
	if err != nil {
		return "", err
	}
	if remote != nil {
		s.metrics.RecordUpload(att.Size())
		s.files.ScheduleCleanup(store)
		s.metrics.RecordCleanupScheduled()
	}

	start := time.Now()
	reply, err := retry.Do(ctx, s.retry, func() (string, error) {
		return mm.GenerateWithFile(ctx, prompt, part)
	}, s.onRetry(req.Provider))
	s.metrics.RecordTurn(req.Provider, time.Since(start), err == nil)
	return reply, err
}

// TestProviderConnection performs the provider's minimal authenticated call.
// The returned error is non-nil only for an unknown provider name.
func (s *Service) TestProviderConnection(ctx context.Context, providerName, apiKey string) (bool, error) {
	svc, err := s.provider(providerName, apiKey)
	if err != nil {
		return false, err
	}
	return svc.TestConnection(ctx), nil
}

// NewConversation starts a fresh conversation, releasing the previously
// active one so switching away never leaks a live session.
func (s *Service) NewConversation(previousID string) {
	if previousID != "" {
		s.RemoveConversation(previousID)
	}
}

// RemoveConversation drops the pooled session for a deleted conversation.
// Unknown ids are a no-op.
func (s *Service) RemoveConversation(conversationID string) {
	s.pool.Remove(conversationID)
	s.inflight.Delete(conversationID)
	s.metrics.SetPooledSessions(s.pool.Size())
}

// LoadConversation recreates the session for a stored conversation, seeding
// it with the UI's message list.
func (s *Service) LoadConversation(ctx context.Context, conversationID, providerName, apiKey string, messages []model.Message) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id required")
	}
	_, err := s.pool.GetOrCreate(ctx, conversationID, providerName, apiKey, messages)
	if err != nil {
		return err
	}
	s.metrics.SetPooledSessions(s.pool.Size())
	return nil
}

// GenerateOnce performs a stateless one-shot generation on the named
// provider, outside any pooled session.
func (s *Service) GenerateOnce(ctx context.Context, providerName, apiKey, prompt string) (string, error) {
	svc, err := s.provider(providerName, apiKey)
	if err != nil {
		return "", err
	}
	return retry.Do(ctx, s.retry, func() (string, error) {
		return svc.GenerateText(ctx, prompt)
	}, s.onRetry(providerName))
}

func (s *Service) onRetry(providerName string) retry.Option {
	return retry.WithOnRetry(func(int, error) {
		s.metrics.RecordRetry(providerName)
	})
}

func (s *Service) lockConversation(conversationID string) func() {
	v, _ := s.inflight.LoadOrStore(conversationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func formatAttachmentContent(att *filelife.Attachment, text string) string {
	request := text
	if request == "" {
		request = defaultFilePrompt
	}
	return fmt.Sprintf("[文件上传] %s (%s)\n处理需求：%s", att.Name, att.EffectiveMIMEType(), request)
}
