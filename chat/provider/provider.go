// Package provider implements the uniform adapter interface over the
// supported LLM backends.
//
// A Service instance is one provider-side chat session: it owns its own
// history buffer and is constructed once per conversation by the session
// pool. Adapters never retry; transient-failure handling belongs to the
// retry policy that wraps each call.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/52hzxgfy/chatbot/chat/history"
)

// Provider names form a closed set, resolved once at session creation.
const (
	Gemini = "gemini-1.5-flash"
	Llama  = "llama-3.1-70b"
	Qwen   = "qwen2.5-72b-instruct"
)

// Error carries the upstream status and message of a failed provider call.
// StatusCode is 0 for transport-level failures with no HTTP response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider call failed: %s", e.Message)
	}
	return fmt.Sprintf("provider call failed: status %d: %s", e.StatusCode, e.Message)
}

// Service is the capability set common to every provider.
type Service interface {
	// Name returns the provider name the service was created for.
	Name() string

	// TestConnection performs a minimal authenticated call. It returns
	// false for ordinary auth/network failure and never an error; client
	// misconfiguration is caught earlier, by New.
	TestConnection(ctx context.Context) bool

	// SendMessage sends one user turn within the session. When systemPrompt
	// is non-empty it is applied in the provider's native way (priming turn
	// or system message) before the user turn. Every successful send
	// appends the outgoing and incoming turns to the session history.
	SendMessage(ctx context.Context, text, systemPrompt string) (string, error)

	// GenerateText performs a stateless one-shot generation outside the
	// session; it does not touch the session history.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// History returns a copy of the session's provider-native history.
	History() []history.Entry

	// ReplaceHistory overwrites the session history wholesale. Used to seed
	// a session at creation and to resync after a completed turn.
	ReplaceHistory(entries []history.Entry)
}

// FileRef identifies a file stored on the provider side.
type FileRef struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// FilePart is prepared file content for a multimodal request: either inline
// base64 bytes or a reference to a previously uploaded remote file.
type FilePart struct {
	MIMEType   string
	InlineData string // base64; set for inline payloads
	FileURI    string // set for remote references
}

// Multimodal is implemented by file-capable providers.
type Multimodal interface {
	Service

	// GenerateWithFile sends a one-shot multimodal request pairing the
	// prompt with prepared file content.
	GenerateWithFile(ctx context.Context, prompt string, file FilePart) (string, error)
}

// FileStore is the provider-side file lifecycle surface: upload once,
// reference by URI, list and delete for cleanup.
type FileStore interface {
	UploadFile(ctx context.Context, name, mimeType string, r io.Reader) (FileRef, error)
	ListFiles(ctx context.Context) ([]FileRef, error)
	DeleteFile(ctx context.Context, name string) error
}

// ErrUnknownProvider marks a provider name outside the closed set. It is
// irrecoverable client misconfiguration, not a transient failure.
var ErrUnknownProvider = errors.New("unknown provider")

// New constructs the adapter for the named provider. An unknown name is the
// only error this returns.
func New(name, apiKey string) (Service, error) {
	switch name {
	case Gemini:
		return newGeminiService(apiKey), nil
	case Llama:
		return newGroqService(apiKey), nil
	case Qwen:
		return newQwenService(apiKey), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
}

// Names returns the supported provider names.
func Names() []string {
	return []string{Gemini, Llama, Qwen}
}
