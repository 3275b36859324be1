// Package filelife manages user-attached files from validation through
// provider upload to expiry-driven cleanup.
//
// Files at or below the inline threshold are base64-embedded in the next
// provider request; larger files are uploaded out-of-band and referenced by
// URI. Uploaded files expire on the provider side after ~48h; a best-effort
// in-process sweep deletes them shortly before that.
package filelife

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/52hzxgfy/chatbot/chat/provider"
)

const (
	// InlineThreshold is the hard size boundary between inline payloads and
	// out-of-band uploads.
	InlineThreshold = 20 * 1024 * 1024

	// MaxAudioDuration is the longest audio the provider accepts (9.5h).
	MaxAudioDuration = 34200 * time.Second

	// DefaultCleanupDelay precedes the provider's own ~48h file expiry.
	DefaultCleanupDelay = 47 * time.Hour

	// DefaultProbeTimeout bounds the audio metadata decode.
	DefaultProbeTimeout = 10 * time.Second

	cacheTTL = 48 * time.Hour
)

// supportedTypes is the fixed media-type allow-list spanning image, video,
// audio and document categories.
var supportedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},

	"video/mp4":   {},
	"video/mpeg":  {},
	"video/mov":   {},
	"video/avi":   {},
	"video/x-flv": {},
	"video/mpg":   {},
	"video/webm":  {},
	"video/wmv":   {},
	"video/3gpp":  {},

	"audio/wav":  {},
	"audio/mp3":  {},
	"audio/aiff": {},
	"audio/aac":  {},
	"audio/ogg":  {},
	"audio/flac": {},

	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/msword": {},
	"text/plain":         {},
}

var supportedAudioTypes = map[string]struct{}{
	"audio/wav":  {},
	"audio/mp3":  {},
	"audio/aiff": {},
	"audio/aac":  {},
	"audio/ogg":  {},
	"audio/flac": {},
}

// Attachment is a user-attached file handed in by the UI layer.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the attachment size in bytes.
func (a *Attachment) Size() int64 { return int64(len(a.Data)) }

// EffectiveMIMEType returns the declared media type, or a sniffed one when
// the UI supplied none.
func (a *Attachment) EffectiveMIMEType() string {
	if a.MIMEType != "" {
		return a.MIMEType
	}
	return mimetype.Detect(a.Data).String()
}

// IsAudio reports whether the attachment is an audio file.
func (a *Attachment) IsAudio() bool {
	return strings.HasPrefix(a.EffectiveMIMEType(), "audio/")
}

// ValidationError is a pre-network rejection with a user-facing reason.
// It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// UploadError is a failed out-of-band upload. It aborts the current send.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("file upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// CachedFileRef records a successful upload for local bookkeeping. The
// provider remains authoritative; the cache is never consulted to
// short-circuit a re-upload.
type CachedFileRef struct {
	RemoteName string
	RemoteURI  string
	ExpiresAt  time.Time
}

// Config tunes the manager. Zero values select the defaults.
type Config struct {
	CleanupDelay time.Duration
	ProbeTimeout time.Duration
}

// Manager validates, prepares and expires attachments.
type Manager struct {
	config Config

	mu    sync.Mutex
	cache map[string]CachedFileRef
}

// NewManager creates a Manager with the given configuration.
func NewManager(config Config) *Manager {
	if config.CleanupDelay <= 0 {
		config.CleanupDelay = DefaultCleanupDelay
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	return &Manager{
		config: config,
		cache:  make(map[string]CachedFileRef),
	}
}

// Validate checks the attachment's media type against the allow-list.
// Rejection happens before any network call.
func (m *Manager) Validate(att *Attachment) error {
	mime := att.EffectiveMIMEType()
	if _, ok := supportedTypes[mime]; !ok {
		return &ValidationError{
			Reason: fmt.Sprintf("unsupported file type %q: upload an image, video, audio or document file (PDF/Word/TXT)", mime),
		}
	}
	return nil
}

// Prepare turns the attachment into provider request content. Files at or
// below the inline threshold are embedded as base64; larger files are
// uploaded first and referenced by URI. The returned FileRef is non-nil only
// on the remote path.
func (m *Manager) Prepare(ctx context.Context, store provider.FileStore, att *Attachment) (provider.FilePart, *provider.FileRef, error) {
	mime := att.EffectiveMIMEType()

	if att.Size() <= InlineThreshold {
		return provider.FilePart{
			MIMEType:   mime,
			InlineData: base64.StdEncoding.EncodeToString(att.Data),
		}, nil, nil
	}

	ref, err := store.UploadFile(ctx, att.Name, mime, bytes.NewReader(att.Data))
	if err != nil {
		return provider.FilePart{}, nil, &UploadError{Err: err}
	}

	m.mu.Lock()
	m.cache[ref.Name] = CachedFileRef{
		RemoteName: ref.Name,
		RemoteURI:  ref.URI,
		ExpiresAt:  time.Now().Add(cacheTTL),
	}
	m.mu.Unlock()

	slog.Debug("uploaded attachment out-of-band",
		"name", att.Name,
		"remote_name", ref.Name,
		"size_bytes", att.Size(),
	)

	return provider.FilePart{MIMEType: mime, FileURI: ref.URI}, &ref, nil
}

// CachedRefs returns a snapshot of the upload bookkeeping cache.
func (m *Manager) CachedRefs() []CachedFileRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]CachedFileRef, 0, len(m.cache))
	for _, ref := range m.cache {
		refs = append(refs, ref)
	}
	return refs
}

// ScheduleCleanup arms a one-shot in-process sweep that lists and deletes
// all remote files for the store's credential after the configured delay.
// The sweep is best-effort: failures are logged, never surfaced and never
// retried. The timer does not survive a process restart; the provider's own
// expiry is the backstop.
func (m *Manager) ScheduleCleanup(store provider.FileStore) {
	time.AfterFunc(m.config.CleanupDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		m.sweep(ctx, store)
	})
}

func (m *Manager) sweep(ctx context.Context, store provider.FileStore) {
	files, err := store.ListFiles(ctx)
	if err != nil {
		slog.Warn("file cleanup sweep failed to list remote files", "error", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range files {
		g.Go(func() error {
			if err := store.DeleteFile(ctx, f.Name); err != nil {
				slog.Warn("file cleanup sweep failed to delete remote file",
					"remote_name", f.Name,
					"error", err,
				)
				return nil // best-effort: keep deleting the rest
			}
			m.mu.Lock()
			delete(m.cache, f.Name)
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	slog.Info("file cleanup sweep completed", "listed", len(files))
}
