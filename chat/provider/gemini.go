package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/52hzxgfy/chatbot/chat/history"
)

const (
	geminiAPIBase = "https://generativelanguage.googleapis.com/v1"
	geminiModel   = "gemini-1.5-flash"

	geminiTemperature     = 0.7
	geminiMaxOutputTokens = 2048
)

// geminiService talks to the Gemini v1 REST API directly. It is the only
// multimodal, file-capable provider.
type geminiService struct {
	rc      *resty.Client
	apiKey  string
	baseURL string

	mu      sync.Mutex
	history []history.Entry
}

var (
	_ Multimodal = (*geminiService)(nil)
	_ FileStore  = (*geminiService)(nil)
)

func newGeminiService(apiKey string) *geminiService {
	return &geminiService{
		rc:      resty.New().SetTimeout(60 * time.Second),
		apiKey:  apiKey,
		baseURL: geminiAPIBase,
	}
}

func (s *geminiService) Name() string { return Gemini }

// Wire types for the generateContent endpoint.
type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlob     `json:"inline_data,omitempty"`
	FileData   *geminiFileData `json:"file_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (s *geminiService) TestConnection(ctx context.Context) bool {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		Get(fmt.Sprintf("%s/models/%s", s.baseURL, geminiModel))
	if err != nil {
		slog.Debug("gemini connection test failed", "error", err)
		return false
	}
	return resp.IsSuccess()
}

func (s *geminiService) SendMessage(ctx context.Context, text, systemPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Gemini has no system role on this endpoint: a supplied system prompt
	// is sent as a priming turn before the user turn and recorded as a
	// model-role entry. The priming reply itself is discarded.
	if systemPrompt != "" {
		contents := append(entriesToContents(s.history), geminiContent{
			Role:  history.RoleUser,
			Parts: []geminiPart{{Text: systemPrompt}},
		})
		if _, err := s.generate(ctx, contents, true); err != nil {
			return "", err
		}
		s.history = append(s.history, history.NewEntry(history.RoleModel, systemPrompt))
	}

	contents := append(entriesToContents(s.history), geminiContent{
		Role:  history.RoleUser,
		Parts: []geminiPart{{Text: text}},
	})
	reply, err := s.generate(ctx, contents, true)
	if err != nil {
		return "", err
	}

	s.history = append(s.history,
		history.NewEntry(history.RoleUser, text),
		history.NewEntry(history.RoleModel, reply),
	)
	return reply, nil
}

func (s *geminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []geminiContent{{
		Role:  history.RoleUser,
		Parts: []geminiPart{{Text: prompt}},
	}}
	return s.generate(ctx, contents, false)
}

func (s *geminiService) GenerateWithFile(ctx context.Context, prompt string, file FilePart) (string, error) {
	part := geminiPart{}
	switch {
	case file.FileURI != "":
		part.FileData = &geminiFileData{MIMEType: file.MIMEType, FileURI: file.FileURI}
	default:
		part.InlineData = &geminiBlob{MIMEType: file.MIMEType, Data: file.InlineData}
	}

	contents := []geminiContent{{
		Role:  history.RoleUser,
		Parts: []geminiPart{{Text: prompt}, part},
	}}
	return s.generate(ctx, contents, true)
}

func (s *geminiService) generate(ctx context.Context, contents []geminiContent, withConfig bool) (string, error) {
	req := geminiGenerateRequest{Contents: contents}
	if withConfig {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     geminiTemperature,
			MaxOutputTokens: geminiMaxOutputTokens,
		}
	}

	var out geminiGenerateResponse
	resp, err := s.rc.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		SetBody(req).
		SetResult(&out).
		Post(fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, geminiModel))
	if err != nil {
		return "", &Error{Message: err.Error()}
	}
	if resp.IsError() {
		return "", &Error{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &Error{StatusCode: resp.StatusCode(), Message: "empty response from model"}
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (s *geminiService) History() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Entry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *geminiService) ReplaceHistory(entries []history.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]history.Entry, len(entries))
	copy(s.history, entries)
}

// UploadFile pushes file bytes to the provider's file API and returns the
// remote reference. Files uploaded this way expire on the provider side
// after roughly 48 hours.
func (s *geminiService) UploadFile(ctx context.Context, name, mimeType string, r io.Reader) (FileRef, error) {
	var out FileRef
	resp, err := s.rc.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		SetMultipartField("file", name, mimeType, r).
		SetResult(&out).
		Post(fmt.Sprintf("%s/files:upload", s.baseURL))
	if err != nil {
		return FileRef{}, &Error{Message: err.Error()}
	}
	if resp.IsError() {
		return FileRef{}, &Error{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	if out.URI == "" {
		return FileRef{}, &Error{StatusCode: resp.StatusCode(), Message: "upload response missing uri"}
	}
	return out, nil
}

type geminiFileList struct {
	Files []FileRef `json:"files"`
}

func (s *geminiService) ListFiles(ctx context.Context) ([]FileRef, error) {
	var out geminiFileList
	resp, err := s.rc.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		SetResult(&out).
		Get(fmt.Sprintf("%s/files", s.baseURL))
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &Error{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return out.Files, nil
}

func (s *geminiService) DeleteFile(ctx context.Context, name string) error {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		Delete(fmt.Sprintf("%s/files/%s", s.baseURL, name))
	if err != nil {
		return &Error{Message: err.Error()}
	}
	if resp.IsError() {
		return &Error{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

func entriesToContents(entries []history.Entry) []geminiContent {
	contents := make([]geminiContent, 0, len(entries)+1)
	for _, e := range entries {
		parts := make([]geminiPart, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = geminiPart{Text: p.Text}
		}
		contents = append(contents, geminiContent{Role: e.Role, Parts: parts})
	}
	return contents
}
