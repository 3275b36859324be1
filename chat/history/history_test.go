package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/52hzxgfy/chatbot/chat/model"
)

func TestToProviderHistory(t *testing.T) {
	t.Run("maps_roles_and_preserves_order", func(t *testing.T) {
		messages := []model.Message{
			model.NewUserMessage("hello"),
			model.NewAssistantMessage("hi there"),
			model.NewUserMessage("how are you?"),
		}

		entries := ToProviderHistory(messages)
		require.Len(t, entries, len(messages))

		assert.Equal(t, RoleUser, entries[0].Role)
		assert.Equal(t, RoleModel, entries[1].Role)
		assert.Equal(t, RoleUser, entries[2].Role)
	})

	t.Run("copies_content_verbatim", func(t *testing.T) {
		content := "  multi\nline  with trailing spaces  "
		entries := ToProviderHistory([]model.Message{model.NewUserMessage(content)})

		require.Len(t, entries, 1)
		require.Len(t, entries[0].Parts, 1)
		assert.Equal(t, content, entries[0].Parts[0].Text)
	})

	t.Run("empty_input_yields_nil", func(t *testing.T) {
		assert.Nil(t, ToProviderHistory(nil))
		assert.Nil(t, ToProviderHistory([]model.Message{}))
	})

	t.Run("empty_content_kept_as_entry", func(t *testing.T) {
		entries := ToProviderHistory([]model.Message{model.NewAssistantMessage("")})
		require.Len(t, entries, 1)
		assert.Equal(t, RoleModel, entries[0].Role)
		assert.Equal(t, "", entries[0].Parts[0].Text)
	})
}

func TestNewEntry(t *testing.T) {
	e := NewEntry(RoleModel, "你好")
	assert.Equal(t, RoleModel, e.Role)
	require.Len(t, e.Parts, 1)
	assert.Equal(t, "你好", e.Parts[0].Text)
}
