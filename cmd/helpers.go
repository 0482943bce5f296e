package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/config"
	"github.com/equaliser/intake-agent/internal/db"
	"github.com/equaliser/intake-agent/internal/embeddings"
	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/knowledge"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/logging"
	"github.com/equaliser/intake-agent/internal/progress"
	"github.com/equaliser/intake-agent/internal/report"
	"github.com/equaliser/intake-agent/internal/respond"
	"github.com/equaliser/intake-agent/internal/vectordb"
	"github.com/equaliser/intake-agent/internal/walker"
)

// reportMaxTokens leaves room for a full report section.
const reportMaxTokens = 4096

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `intake init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// setup loads the config and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// createLLMProviderFromConfig builds the oracle stack: the provider behind a
// rate limiter, timeouts and retries, with usage recorded on the outside.
func createLLMProviderFromConfig(cfg *config.Config, logger *zap.Logger) (*llm.UsageTracker, error) {
	base, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	limited := llm.NewRateLimitedProvider(base, cfg.Oracle.RequestsPerMinute)
	reliable := llm.NewReliableProvider(limited, llm.ReliableOptions{
		Timeout:     cfg.Oracle.Timeout(),
		MaxAttempts: cfg.Oracle.MaxAttempts,
		Logger:      logger.Named("oracle"),
	})
	return llm.NewUsageTracker(reliable), nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// Embedding calls retry like oracle calls do.
func createEmbedderFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider, cfg.Quality).EmbeddingModel
	}
	return embeddings.New(ctx, embeddings.Options{
		Provider:    string(provider),
		Model:       model,
		MaxAttempts: cfg.Oracle.MaxAttempts,
		Logger:      logger.Named("embeddings"),
	})
}

// openKnowledgeStore opens the persisted knowledge index.
func openKnowledgeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*vectordb.ChromemStore, error) {
	embedder, err := createEmbedderFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := knowledge.OpenStore(ctx, embedder, cfg.VectorDir(), cfg.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge index %s: %w", cfg.VectorDir(), err)
	}
	return store, nil
}

// newIndexer returns an indexer over the configured knowledge directory.
func newIndexer(cfg *config.Config, store vectordb.VectorStore, reporter progress.Reporter, logger *zap.Logger) *knowledge.Indexer {
	return knowledge.NewIndexer(store, knowledge.IndexerConfig{
		Walk: walker.WalkerConfig{
			RootDir: cfg.KnowledgeDir,
			Include: cfg.Include,
			Exclude: cfg.Exclude,
		},
		Concurrency: cfg.MaxConcurrency,
		PersistDir:  cfg.VectorDir(),
		Reporter:    reporter,
		Logger:      logger.Named("knowledge"),
	})
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// Database opens the SQLite database for reports even when sessions
	// are kept in memory.
	Database bool
	// Reporter shows report drafting progress.
	Reporter progress.Reporter
}

// app is the wired intake runtime shared by the commands.
type app struct {
	logger    *zap.Logger
	usage     *llm.UsageTracker
	extractor *extract.Extractor
	knowledge *vectordb.ChromemStore // nil when the index is unavailable
	retriever *knowledge.Retriever   // nil when the index is unavailable
	database  *db.DB                 // nil unless requested or sessions use sqlite
	service   *intake.Service
	pipeline  *report.Pipeline
	reports   *report.Handler // nil without a database
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{logger: logger}

	usage, err := createLLMProviderFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.usage = usage

	// Educate mode needs the knowledge base; without it replies degrade to
	// listening.
	var retriever respond.Retriever
	if store, err := openKnowledgeStore(ctx, cfg, logger); err != nil {
		logger.Warn("knowledge base unavailable", zap.Error(err))
	} else {
		a.knowledge = store
		a.retriever = knowledge.NewRetriever(store, 0)
		retriever = a.retriever
	}

	extractor := extract.NewExtractor(usage, extract.Options{
		Model:          cfg.Model,
		Temperature:    cfg.Oracle.Temperature,
		SchemaAttempts: cfg.Oracle.SchemaAttempts,
		Logger:         logger.Named("extract"),
	})
	a.extractor = extractor

	systemPrompt, err := cfg.Intake.SystemPrompt()
	if err != nil {
		return nil, err
	}
	generator := respond.NewGenerator(extractor.Caller(), extractor, retriever, respond.Config{
		SystemPrompt: systemPrompt,
		OptionCount:  cfg.Intake.GuideOptions,
		TopK:         cfg.Intake.RetrievalTopK,
		Logger:       logger.Named("respond"),
	})

	orch, err := intake.NewOrchestrator(extractor, generator, intake.Config{
		MessageLimit:       cfg.Intake.MessageLimit,
		CondenseThreshold:  cfg.Intake.CondenseThreshold,
		MaxMissingCritical: cfg.Intake.MaxMissingCritical,
		ReconfirmAfter:     cfg.Intake.ReconfirmAfter,
	}, logger.Named("intake"))
	if err != nil {
		return nil, err
	}

	var sessions intake.Store = intake.NewMemoryStore()
	if opts.Database || cfg.Server.SessionStore == config.SessionStoreSQLite {
		database, err := db.Open(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.database = database
		if cfg.Server.SessionStore == config.SessionStoreSQLite {
			sessions = intake.NewSQLStore(database)
		}
	}
	a.service = intake.NewService(orch, sessions, logger.Named("service"))

	reportCaller := *extractor.Caller()
	reportCaller.MaxTokens = reportMaxTokens
	a.pipeline = report.NewPipeline(&reportCaller, report.Options{
		Reporter: opts.Reporter,
		Logger:   logger.Named("report"),
	})
	if a.database != nil {
		a.reports = &report.Handler{
			Pipeline: a.pipeline,
			Store:    report.NewStore(a.database),
			Sessions: a.service,
			Model:    cfg.Model,
			Logger:   logger.Named("report"),
		}
	}
	return a, nil
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if a.database != nil {
		a.database.Close()
	}
	_ = a.logger.Sync()
}

// printUsage writes the oracle spend to stderr.
func (a *app) printUsage() {
	total := a.usage.Total()
	if total.Calls == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "Oracle usage: %d calls, %d input / %d output tokens, ~$%.4f\n",
		total.Calls, total.InputTokens, total.OutputTokens, total.CostUSD)
}

// knowledgeCount returns the number of indexed chunks, zero without an index.
func (a *app) knowledgeCount() int {
	if a.knowledge == nil {
		return 0
	}
	return a.knowledge.Count()
}
