// Package llm is a client for OpenAI-compatible chat-completions APIs
// (Groq by default).
package llm

import "time"

// Default provider settings.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 60 * time.Second
)

// Config holds all configuration for the chat-completions client.
type Config struct {
	// BaseURL is the API root; "/chat/completions" is appended.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the model identifier.
	Model string

	// Temperature and MaxTokens are fixed sampling parameters.
	Temperature float64
	MaxTokens   int

	// Timeout is the HTTP client timeout for each request.
	Timeout time.Duration
}

// DefaultConfig returns a Config for the Groq endpoint without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
}
