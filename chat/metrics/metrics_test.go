package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter(t *testing.T) {
	e := NewExporter(DefaultConfig())

	e.RecordTurn("gemini-1.5-flash", 250*time.Millisecond, true)
	e.RecordTurn("gemini-1.5-flash", time.Second, false)
	e.RecordRetry("gemini-1.5-flash")
	e.RecordUpload(1 << 20)
	e.SetPooledSessions(3)
	e.RecordCleanupScheduled()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `chatbot_turns_total{outcome="success",provider="gemini-1.5-flash"} 1`)
	assert.Contains(t, body, `chatbot_turns_total{outcome="error",provider="gemini-1.5-flash"} 1`)
	assert.Contains(t, body, `chatbot_send_retries_total{provider="gemini-1.5-flash"} 1`)
	assert.Contains(t, body, "chatbot_upload_bytes_total 1.048576e+06")
	assert.Contains(t, body, "chatbot_pooled_sessions 3")
	assert.Contains(t, body, "chatbot_cleanup_sweeps_scheduled_total 1")

	// Failed turns are counted but excluded from the latency histogram.
	assert.Contains(t, body, `chatbot_turn_duration_seconds_count{provider="gemini-1.5-flash"} 1`)
}

func TestExporterSharedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	e := NewExporter(Config{Registry: registry})
	e.SetPooledSessions(1)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "chatbot_pooled_sessions")
}
