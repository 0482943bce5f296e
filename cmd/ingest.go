package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the knowledge directory for educate-mode replies",
	Long: `Walks the knowledge directory (markdown, text and HTML guides, legislation
summaries, FAQs and service listings), splits each file into chunks, and
stores their embeddings in the local vector index. Files whose content has
not changed since the last run are skipped.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("dir", "", "knowledge directory (overrides knowledge_dir)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if dir != "" {
		cfg.KnowledgeDir = dir
	}
	if _, err := os.Stat(cfg.KnowledgeDir); err != nil {
		return fmt.Errorf("knowledge directory: %w", err)
	}

	store, err := openKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	ix := newIndexer(cfg, store, progress.NewReporter("Indexing knowledge"), logger)
	stats, err := ix.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", cfg.KnowledgeDir, err)
	}

	fmt.Printf("\nIndexed %s in %s\n", ix.Root(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Files:     %d\n", stats.Files)
	fmt.Printf("  Indexed:   %d\n", stats.Indexed)
	fmt.Printf("  Unchanged: %d\n", stats.Unchanged)
	fmt.Printf("  Failed:    %d\n", stats.Failed)
	fmt.Printf("  Chunks:    %d (index total %d)\n", stats.Chunks, store.Count())
	if stats.Failed > 0 {
		fmt.Println("\nSome files failed to index; run with -v for details.")
	}
	return nil
}
