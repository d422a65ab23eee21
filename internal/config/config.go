package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/bloodlens/internal/llm"
	"github.com/me/bloodlens/internal/pdfextract"
)

// ServerConfig holds process-level configuration for the BloodLens server.
type ServerConfig struct {
	Addr          string // Listen address (default ":8080")
	LogLevel      string // Log level: debug, info, warn, error
	LogFormat     string // Log format: text, json
	LogFile       string // Optional rotating log file (in addition to stderr)
	DBPath        string // SQLite database path (default ~/.bloodlens/bloodlens.db, ":memory:" for testing)
	ConfigFile    string // Optional YAML application config
	SecureCookies bool   // Mark cookies Secure (HTTPS deployments)
	TelemetryDir  string // Directory for trace/metric export files; empty disables telemetry
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ResolveDBPath returns path, or ~/.bloodlens/bloodlens.db when path is empty,
// creating the directory if needed.
func ResolveDBPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".bloodlens")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "bloodlens.db"), nil
}

// Config is the application configuration, loaded once at process start.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Upload   UploadConfig   `yaml:"upload"`
	LLM      LLMConfig      `yaml:"llm"`
	Auth     AuthConfig     `yaml:"auth"`
	Theme    ThemeConfig    `yaml:"theme"`
}

// SessionConfig controls browser session lifetime.
type SessionConfig struct {
	Timeout   Duration `yaml:"timeout"`   // Idle time before an authenticated session expires
	Retention Duration `yaml:"retention"` // Idle time before a session row is deleted
}

// AnalysisConfig controls the per-session analysis quota.
type AnalysisConfig struct {
	DailyLimit int      `yaml:"daily_limit"`
	Window     Duration `yaml:"window"`
}

// UploadConfig bounds uploaded reports and holds the medical-report heuristic.
type UploadConfig struct {
	MaxSizeMB      int      `yaml:"max_size_mb"`
	MaxPages       int      `yaml:"max_pages"`
	MinTextLength  int      `yaml:"min_text_length"`
	MedicalTerms   []string `yaml:"medical_terms"`
	MinTermMatches int      `yaml:"min_term_matches"`
}

// LLMConfig configures the chat-completions provider.
type LLMConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	APIKey      string   `yaml:"-"` // from GROQ_API_KEY only
}

// Client returns the llm client settings.
func (c LLMConfig) Client() llm.Config {
	return llm.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout.Std(),
	}
}

// AuthConfig configures the local auth service.
type AuthConfig struct {
	Issuer    string   `yaml:"issuer"`
	TokenTTL  Duration `yaml:"token_ttl"`
	JWTSecret string   `yaml:"-"` // from BLOODLENS_JWT_SECRET only
}

// Extractor returns the pdfextract limits.
func (c UploadConfig) Extractor() pdfextract.Config {
	return pdfextract.Config{
		MaxSizeMB:      c.MaxSizeMB,
		MaxPages:       c.MaxPages,
		MinTextLength:  c.MinTextLength,
		Terms:          c.MedicalTerms,
		MinTermMatches: c.MinTermMatches,
	}
}

// ThemeConfig holds the UI color constants.
type ThemeConfig struct {
	PrimaryColor   string `yaml:"primary_color"`
	SecondaryColor string `yaml:"secondary_color"`
}

// DefaultMedicalTerms is the default term list of the medical-report heuristic.
var DefaultMedicalTerms = []string{
	"blood", "test", "report", "laboratory", "patient", "hemoglobin", "glucose",
	"cholesterol", "wbc", "rbc", "platelet", "hematocrit", "specimen",
	"reference range", "result",
}

// Default returns the built-in application configuration.
func Default() Config {
	return Config{
		Session: SessionConfig{
			Timeout:   Duration(30 * time.Minute),
			Retention: Duration(7 * 24 * time.Hour),
		},
		Analysis: AnalysisConfig{
			DailyLimit: 10,
			Window:     Duration(24 * time.Hour),
		},
		Upload: UploadConfig{
			MaxSizeMB:      10,
			MaxPages:       50,
			MinTextLength:  50,
			MedicalTerms:   append([]string(nil), DefaultMedicalTerms...),
			MinTermMatches: 3,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     Duration(60 * time.Second),
		},
		Auth: AuthConfig{
			Issuer:   "bloodlens",
			TokenTTL: Duration(7 * 24 * time.Hour),
		},
		Theme: ThemeConfig{
			PrimaryColor:   "#1976D2",
			SecondaryColor: "#64B5F6",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// with secrets from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv copies secrets and overrides from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("BLOODLENS_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("BLOODLENS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be > 0")
	}
	// Deleting session rows also drops their quota counters.
	if c.Session.Retention < c.Analysis.Window || c.Session.Retention < c.Session.Timeout {
		return fmt.Errorf("session.retention must be at least analysis.window and session.timeout")
	}
	if c.Analysis.DailyLimit <= 0 {
		return fmt.Errorf("analysis.daily_limit must be > 0")
	}
	if c.Analysis.Window <= 0 {
		return fmt.Errorf("analysis.window must be > 0")
	}
	if c.Upload.MaxSizeMB <= 0 || c.Upload.MaxPages <= 0 {
		return fmt.Errorf("upload.max_size_mb and upload.max_pages must be > 0")
	}
	if c.Upload.MinTermMatches < 0 || c.Upload.MinTermMatches > len(c.Upload.MedicalTerms) {
		return fmt.Errorf("upload.min_term_matches must be between 0 and the number of medical terms")
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return fmt.Errorf("llm.base_url and llm.model cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	return nil
}

// Duration is a time.Duration that reads from YAML strings like "30m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
