// Package profile carries the process configuration for the chat service.
package profile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode can be "prod", "dev" or "demo".
	Mode string
	// Addr is the binding address; empty binds all interfaces.
	Addr string
	// Port is the binding port.
	Port int

	// Operator-supplied default provider credentials. The UI owns real key
	// storage and passes keys per request; these only back requests that
	// carry no key.
	GeminiAPIKey      string
	GroqAPIKey        string
	SiliconFlowAPIKey string

	// MetricsEnabled exposes the Prometheus endpoint.
	MetricsEnabled bool

	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// APIKeyFor returns the operator default credential for a provider name,
// or empty when none is configured.
func (p *Profile) APIKeyFor(providerName string) string {
	switch providerName {
	case "gemini-1.5-flash":
		return p.GeminiAPIKey
	case "llama-3.1-70b":
		return p.GroqAPIKey
	case "qwen2.5-72b-instruct":
		return p.SiliconFlowAPIKey
	default:
		return ""
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// from flags are only overridden when the variable is present.
func (p *Profile) FromEnv() {
	p.GeminiAPIKey = getEnvOrDefault("CHATBOT_GEMINI_API_KEY", p.GeminiAPIKey)
	p.GroqAPIKey = getEnvOrDefault("CHATBOT_GROQ_API_KEY", p.GroqAPIKey)
	p.SiliconFlowAPIKey = getEnvOrDefault("CHATBOT_SILICONFLOW_API_KEY", p.SiliconFlowAPIKey)
	p.MetricsEnabled = getEnvOrDefault("CHATBOT_METRICS_ENABLED", boolString(p.MetricsEnabled)) == "true"
	if port := getEnvOrDefaultInt("CHATBOT_PORT", 0); port != 0 {
		p.Port = port
	}
}

// Validate normalizes the profile and rejects unusable values.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
