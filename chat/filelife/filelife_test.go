package filelife

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/52hzxgfy/chatbot/chat/provider"
)

// fakeStore records upload/list/delete calls in memory.
type fakeStore struct {
	mu        sync.Mutex
	files     map[string]provider.FileRef
	uploads   int
	deletes   []string
	uploadErr error
	deleteErr error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]provider.FileRef)}
}

func (s *fakeStore) UploadFile(_ context.Context, name, mimeType string, r io.Reader) (provider.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploadErr != nil {
		return provider.FileRef{}, s.uploadErr
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return provider.FileRef{}, err
	}
	ref := provider.FileRef{
		Name: fmt.Sprintf("files/upload-%d", s.uploads),
		URI:  fmt.Sprintf("https://files.example/upload-%d", s.uploads),
	}
	s.files[ref.Name] = ref
	return ref, nil
}

func (s *fakeStore) ListFiles(context.Context) ([]provider.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	refs := make([]provider.FileRef, 0, len(s.files))
	for _, ref := range s.files {
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *fakeStore) DeleteFile(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, name)
	delete(s.files, name)
	return nil
}

func (s *fakeStore) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func TestValidate(t *testing.T) {
	m := NewManager(Config{})

	t.Run("allowed_types_pass", func(t *testing.T) {
		for _, mime := range []string{
			"image/png", "video/mp4", "audio/wav", "application/pdf", "text/plain",
		} {
			att := &Attachment{Name: "f", MIMEType: mime, Data: []byte("x")}
			assert.NoError(t, m.Validate(att), mime)
		}
	})

	t.Run("unsupported_type_rejected_before_any_network_call", func(t *testing.T) {
		att := &Attachment{Name: "archive.zip", MIMEType: "application/zip", Data: []byte("PK")}
		err := m.Validate(att)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "application/zip")
	})

	t.Run("missing_mime_is_sniffed", func(t *testing.T) {
		// PNG magic bytes.
		png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
		att := &Attachment{Name: "pic", Data: png}
		assert.Equal(t, "image/png", att.EffectiveMIMEType())
		assert.NoError(t, m.Validate(att))
	})
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{})

	t.Run("at_threshold_stays_inline", func(t *testing.T) {
		store := newFakeStore()
		data := bytes.Repeat([]byte{0xAB}, InlineThreshold)
		att := &Attachment{Name: "big.png", MIMEType: "image/png", Data: data}

		part, ref, err := m.Prepare(ctx, store, att)
		require.NoError(t, err)
		assert.Nil(t, ref)
		assert.Equal(t, 0, store.uploads)
		assert.Equal(t, "image/png", part.MIMEType)
		assert.Empty(t, part.FileURI)
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), part.InlineData)
	})

	t.Run("over_threshold_uploads", func(t *testing.T) {
		store := newFakeStore()
		att := &Attachment{
			Name:     "huge.pdf",
			MIMEType: "application/pdf",
			Data:     bytes.Repeat([]byte{0x01}, InlineThreshold+1),
		}

		part, ref, err := m.Prepare(ctx, store, att)
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, 1, store.uploads)
		assert.Empty(t, part.InlineData)
		assert.Equal(t, ref.URI, part.FileURI)

		refs := m.CachedRefs()
		require.Len(t, refs, 1)
		assert.Equal(t, ref.Name, refs[0].RemoteName)
		assert.WithinDuration(t, time.Now().Add(48*time.Hour), refs[0].ExpiresAt, time.Minute)
	})

	t.Run("upload_failure_aborts_send", func(t *testing.T) {
		m := NewManager(Config{})
		store := newFakeStore()
		store.uploadErr = errors.New("503 service unavailable")
		att := &Attachment{
			Name:     "huge.pdf",
			MIMEType: "application/pdf",
			Data:     bytes.Repeat([]byte{0x01}, InlineThreshold+1),
		}

		_, ref, err := m.Prepare(ctx, store, att)
		assert.Nil(t, ref)

		var uerr *UploadError
		require.ErrorAs(t, err, &uerr)
		assert.ErrorIs(t, err, store.uploadErr)
		assert.Empty(t, m.CachedRefs())
	})
}

func TestScheduleCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("sweep_deletes_all_remote_files", func(t *testing.T) {
		m := NewManager(Config{CleanupDelay: 5 * time.Millisecond})
		store := newFakeStore()

		for i := 0; i < 3; i++ {
			att := &Attachment{
				Name:     fmt.Sprintf("f%d.pdf", i),
				MIMEType: "application/pdf",
				Data:     bytes.Repeat([]byte{0x01}, InlineThreshold+1),
			}
			_, _, err := m.Prepare(ctx, store, att)
			require.NoError(t, err)
		}
		require.Len(t, m.CachedRefs(), 3)

		m.ScheduleCleanup(store)

		require.Eventually(t, func() bool { return store.remaining() == 0 },
			time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool { return len(m.CachedRefs()) == 0 },
			time.Second, 10*time.Millisecond)
	})

	t.Run("delete_failures_are_swallowed", func(t *testing.T) {
		m := NewManager(Config{CleanupDelay: 5 * time.Millisecond})
		store := newFakeStore()
		att := &Attachment{
			Name:     "f.pdf",
			MIMEType: "application/pdf",
			Data:     bytes.Repeat([]byte{0x01}, InlineThreshold+1),
		}
		_, _, err := m.Prepare(ctx, store, att)
		require.NoError(t, err)
		store.deleteErr = errors.New("permission denied")

		m.ScheduleCleanup(store)

		// The failed file stays remote and stays in the local cache.
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 1, store.remaining())
		assert.Len(t, m.CachedRefs(), 1)
	})
}
