package config

import "time"

// QualityTier controls the model selection and trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGoogle     ProviderType = "google"
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenRouter ProviderType = "openrouter"
)

// SessionStore selects where intake sessions are kept.
type SessionStore string

const (
	SessionStoreMemory SessionStore = "memory"
	SessionStoreSQLite SessionStore = "sqlite"
)

// Config is the top-level intake configuration, corresponding to .intake.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier  `yaml:"quality" koanf:"quality"`
	DataDir           string       `yaml:"data_dir" koanf:"data_dir"`
	KnowledgeDir      string       `yaml:"knowledge_dir" koanf:"knowledge_dir"`
	Include           []string     `yaml:"include" koanf:"include"`
	Exclude           []string     `yaml:"exclude" koanf:"exclude"`
	MaxConcurrency    int          `yaml:"max_concurrency" koanf:"max_concurrency"`

	Intake IntakeConfig `yaml:"intake" koanf:"intake"`
	Oracle OracleConfig `yaml:"oracle" koanf:"oracle"`
	Server ServerConfig `yaml:"server" koanf:"server"`
	Log    LogConfig    `yaml:"log" koanf:"log"`
}

// IntakeConfig tunes the conversation loop.
type IntakeConfig struct {
	MessageLimit       int    `yaml:"message_limit" koanf:"message_limit"`
	CondenseThreshold  int    `yaml:"condense_threshold" koanf:"condense_threshold"`
	MaxMissingCritical int    `yaml:"max_missing_critical" koanf:"max_missing_critical"`
	GuideOptions       int    `yaml:"guide_options" koanf:"guide_options"`
	RetrievalTopK      int    `yaml:"retrieval_top_k" koanf:"retrieval_top_k"`
	ReconfirmAfter     int    `yaml:"reconfirm_after" koanf:"reconfirm_after"`
	SystemPromptFile   string `yaml:"system_prompt_file,omitempty" koanf:"system_prompt_file"`
}

// OracleConfig bounds every call to the language model.
type OracleConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	MaxAttempts       int     `yaml:"max_attempts" koanf:"max_attempts"`
	SchemaAttempts    int     `yaml:"schema_attempts" koanf:"schema_attempts"`
	RequestsPerMinute int     `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Temperature       float64 `yaml:"temperature" koanf:"temperature"`
}

// Timeout returns the per-call timeout.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int          `yaml:"port" koanf:"port"`
	AllowedOrigins    []string     `yaml:"allowed_origins" koanf:"allowed_origins"`
	SessionStore      SessionStore `yaml:"session_store" koanf:"session_store"`
	SessionTTLMinutes int          `yaml:"session_ttl_minutes" koanf:"session_ttl_minutes"`
	JanitorInterval   string       `yaml:"janitor_interval" koanf:"janitor_interval"`
}

// SessionTTL is how long a session may sit idle before the janitor removes
// it. Zero disables expiry.
func (s ServerConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" koanf:"level"`
	Development bool   `yaml:"development" koanf:"development"`
}
