package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("unknown_mode_falls_back_to_demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Port: 8080}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("known_modes_kept", func(t *testing.T) {
		for _, mode := range []string{"dev", "prod", "demo"} {
			p := &Profile{Mode: mode, Port: 8080}
			require.NoError(t, p.Validate())
			assert.Equal(t, mode, p.Mode)
		}
	})

	t.Run("invalid_port_rejected", func(t *testing.T) {
		for _, port := range []int{0, -1, 70000} {
			p := &Profile{Mode: "dev", Port: port}
			assert.Error(t, p.Validate(), "port %d", port)
		}
	})
}

func TestAPIKeyFor(t *testing.T) {
	p := &Profile{
		GeminiAPIKey:      "g",
		GroqAPIKey:        "q",
		SiliconFlowAPIKey: "s",
	}
	assert.Equal(t, "g", p.APIKeyFor("gemini-1.5-flash"))
	assert.Equal(t, "q", p.APIKeyFor("llama-3.1-70b"))
	assert.Equal(t, "s", p.APIKeyFor("qwen2.5-72b-instruct"))
	assert.Empty(t, p.APIKeyFor("gpt-5"))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHATBOT_GEMINI_API_KEY", "env-gemini")
	t.Setenv("CHATBOT_PORT", "9000")
	t.Setenv("CHATBOT_METRICS_ENABLED", "true")

	p := &Profile{Mode: "dev", Port: 8080, GroqAPIKey: "from-flag"}
	p.FromEnv()

	assert.Equal(t, "env-gemini", p.GeminiAPIKey)
	assert.Equal(t, "from-flag", p.GroqAPIKey, "flag value survives when the variable is unset")
	assert.Equal(t, 9000, p.Port)
	assert.True(t, p.MetricsEnabled)
}

func TestListenAddr(t *testing.T) {
	p := &Profile{Addr: "", Port: 28084}
	assert.Equal(t, ":28084", p.ListenAddr())

	p.Addr = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:28084", p.ListenAddr())
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
