package config

import "path/filepath"

// QualityPreset describes the models to use for a given quality tier.
type QualityPreset struct {
	Model          string
	EmbeddingModel string
}

// qualityPresets maps each provider+quality combination to its model choices.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "claude-opus-4-1-20250805", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "gpt-4.1", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderGoogle: {
		QualityLite:   {Model: "gemini-2.5-flash", EmbeddingModel: "gemini-embedding-001"},
		QualityNormal: {Model: "gemini-2.5-pro", EmbeddingModel: "gemini-embedding-001"},
		QualityMax:    {Model: "gemini-2.5-pro", EmbeddingModel: "gemini-embedding-001"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityNormal: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityMax:    {Model: "llama3:70b", EmbeddingModel: "nomic-embed-text"},
	},
	ProviderOpenRouter: {
		QualityLite:   {Model: "openai/gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "anthropic/claude-sonnet-4.5", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "anthropic/claude-opus-4.1", EmbeddingModel: "text-embedding-3-large"},
	},
}

// DefaultExcludes are glob patterns skipped when ingesting the knowledge base.
var DefaultExcludes = []string{
	".git/**",
	"**/drafts/**",
	"**/*.tmp",
	"**/~$*",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             "claude-sonnet-4-5-20250929",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Quality:           QualityNormal,
		DataDir:           ".intake",
		KnowledgeDir:      "knowledge",
		Include:           []string{"**"},
		Exclude:           DefaultExcludes,
		MaxConcurrency:    4,
		Intake: IntakeConfig{
			MessageLimit:       50,
			CondenseThreshold:  12,
			MaxMissingCritical: 0,
			GuideOptions:       4,
			RetrievalTopK:      3,
			ReconfirmAfter:     3,
		},
		Oracle: OracleConfig{
			TimeoutSeconds: 60,
			MaxAttempts:    3,
			SchemaAttempts: 2,
			Temperature:    0.3,
		},
		Server: ServerConfig{
			Port:              8080,
			AllowedOrigins:    []string{"http://localhost:3000"},
			SessionStore:      SessionStoreMemory,
			SessionTTLMinutes: 120,
			JanitorInterval:   "@every 10m",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DatabasePath is the SQLite file holding sessions and reports.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "intake.db")
}

// VectorDir is where the knowledge base index is persisted.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectordb")
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Normal Anthropic preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if preset, ok := tiers[tier]; ok {
			return preset
		}
	}
	return qualityPresets[ProviderAnthropic][QualityNormal]
}
