package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("known_providers", func(t *testing.T) {
		for _, name := range Names() {
			svc, err := New(name, "key")
			require.NoError(t, err, name)
			assert.Equal(t, name, svc.Name())
		}
	})

	t.Run("gemini_is_the_only_file_capable_provider", func(t *testing.T) {
		for _, name := range Names() {
			svc, err := New(name, "key")
			require.NoError(t, err)
			_, multimodal := svc.(Multimodal)
			_, fileStore := svc.(FileStore)
			assert.Equal(t, name == Gemini, multimodal, name)
			assert.Equal(t, name == Gemini, fileStore, name)
		}
	})

	t.Run("unknown_provider", func(t *testing.T) {
		_, err := New("claude-3", "key")
		require.ErrorIs(t, err, ErrUnknownProvider)
		assert.Contains(t, err.Error(), "claude-3")
	})
}

func TestError(t *testing.T) {
	withStatus := &Error{StatusCode: 503, Message: "overloaded"}
	assert.Equal(t, "provider call failed: status 503: overloaded", withStatus.Error())

	transport := &Error{Message: "connection refused"}
	assert.Equal(t, "provider call failed: connection refused", transport.Error())
}
