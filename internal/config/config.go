package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = ".intake.yml"

// EnvPrefix marks environment overrides. Nested keys use a double
// underscore, so INTAKE_INTAKE__MESSAGE_LIMIT sets intake.message_limit.
const EnvPrefix = "INTAKE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (INTAKE_*). The result is not validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic:  true,
	ProviderOpenAI:     true,
	ProviderGoogle:     true,
	ProviderOllama:     true,
	ProviderOpenRouter: true,
}

// validQualityTiers is the set of recognized quality tier values.
var validQualityTiers = map[QualityTier]bool{
	QualityLite:   true,
	QualityNormal: true,
	QualityMax:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai, google, ollama, openrouter", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider != "" && !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q", c.EmbeddingProvider)
	}

	if c.Quality != "" && !validQualityTiers[c.Quality] {
		return fmt.Errorf("invalid quality %q: must be one of lite, normal, max", c.Quality)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be non-negative")
	}

	if err := c.Intake.validate(); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	if err := c.Oracle.validate(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := c.Server.validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c IntakeConfig) validate() error {
	switch {
	case c.MessageLimit < 1:
		return fmt.Errorf("message_limit must be at least 1")
	case c.CondenseThreshold < 3:
		return fmt.Errorf("condense_threshold must be at least 3")
	case c.MaxMissingCritical < 0:
		return fmt.Errorf("max_missing_critical must be non-negative")
	case c.GuideOptions < 2:
		return fmt.Errorf("guide_options must be at least 2")
	case c.RetrievalTopK < 1:
		return fmt.Errorf("retrieval_top_k must be at least 1")
	case c.ReconfirmAfter < 0:
		return fmt.Errorf("reconfirm_after must be non-negative")
	}
	return nil
}

func (o OracleConfig) validate() error {
	switch {
	case o.TimeoutSeconds < 0:
		return fmt.Errorf("timeout_seconds must be non-negative")
	case o.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be at least 1")
	case o.SchemaAttempts < 1:
		return fmt.Errorf("schema_attempts must be at least 1")
	case o.RequestsPerMinute < 0:
		return fmt.Errorf("requests_per_minute must be non-negative")
	case o.Temperature < 0 || o.Temperature > 2:
		return fmt.Errorf("temperature %v outside [0,2]", o.Temperature)
	}
	return nil
}

func (s ServerConfig) validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	switch s.SessionStore {
	case SessionStoreMemory, SessionStoreSQLite:
	default:
		return fmt.Errorf("invalid session_store %q: must be memory or sqlite", s.SessionStore)
	}
	if s.SessionTTLMinutes < 0 {
		return fmt.Errorf("session_ttl_minutes must be non-negative")
	}
	if s.SessionTTLMinutes > 0 {
		if _, err := cron.ParseStandard(s.JanitorInterval); err != nil {
			return fmt.Errorf("invalid janitor_interval %q: %w", s.JanitorInterval, err)
		}
	}
	return nil
}

func (l LogConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid level %q", l.Level)
}

// SystemPrompt returns the contents of system_prompt_file, or "" when no
// file is configured.
func (c IntakeConfig) SystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}
