package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/progress"
)

var replayCmd = &cobra.Command{
	Use:   "replay <transcript>...",
	Short: "Replay scripted conversations through fresh intake sessions",
	Long: `Replays each transcript file (a YAML or JSON array of user messages)
through its own new session and prints the facts gathered and how complete
the session got. Files are replayed concurrently, up to max_concurrency at a
time.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(replayCmd)
}

// replayResult is the outcome of one replayed transcript.
type replayResult struct {
	File      string        `json:"file"`
	SessionID string        `json:"session_id"`
	Turns     int           `json:"turns"`
	Complete  bool          `json:"complete"`
	LastReply string        `json:"last_reply"`
	Facts     facts.Record  `json:"facts"`
	Tracker   facts.Tracker `json:"tracker"`
	Error     string        `json:"error,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	reporter := progress.NewReporter("Replaying transcripts")
	reporter.Start(len(args))

	results := make([]replayResult, len(args))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)
	for i, path := range args {
		g.Go(func() error {
			res, err := replayFile(gctx, a, path)
			if err != nil {
				// One bad transcript does not stop the others.
				logger.Warn("replay failed", zap.String("file", path), zap.Error(err))
				res.File = path
				res.Error = err.Error()
			}
			results[i] = res

			mu.Lock()
			done++
			reporter.Update(done, filepath.Base(path))
			mu.Unlock()
			return gctx.Err()
		})
	}
	err = g.Wait()
	reporter.Finish()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printReplayResults(results)
	}
	a.printUsage()
	return nil
}

func replayFile(ctx context.Context, a *app, path string) (replayResult, error) {
	messages, err := loadTranscript(path)
	if err != nil {
		return replayResult{}, err
	}
	return replayTranscript(ctx, a, path, userMessages(messages))
}

// replayTranscript sends inputs to a new session in order, stopping early if
// the session completes.
func replayTranscript(ctx context.Context, a *app, name string, inputs []string) (replayResult, error) {
	if len(inputs) == 0 {
		return replayResult{}, fmt.Errorf("%s has no user messages", name)
	}
	snap, err := a.service.CreateSession(ctx)
	if err != nil {
		return replayResult{}, fmt.Errorf("creating session: %w", err)
	}
	res := replayResult{File: name, SessionID: snap.ID}
	for _, input := range inputs {
		reply, err := a.service.ProcessTurn(ctx, snap.ID, input)
		if err != nil {
			return res, fmt.Errorf("turn %d: %w", res.Turns+1, err)
		}
		res.Turns++
		res.LastReply = reply.Message
		if reply.Complete {
			break
		}
	}

	final, err := a.service.Session(ctx, snap.ID)
	if err != nil {
		return res, err
	}
	res.Complete = final.Complete()
	res.Facts = final.Facts
	res.Tracker = final.Tracker
	return res, nil
}

func printReplayResults(results []replayResult) {
	for _, r := range results {
		fmt.Printf("== %s\n", r.File)
		if r.Error != "" {
			fmt.Printf("   Error: %s\n\n", r.Error)
			continue
		}
		status := "incomplete"
		if r.Complete {
			status = "complete"
		}
		fmt.Printf("   Session:    %s (%s after %d turns)\n", r.SessionID, status, r.Turns)
		fmt.Printf("   Filled:     %d/%d fields (%.0f%%), confidence %s\n",
			r.Tracker.FieldsFilledCount, r.Tracker.FieldsTotalCount,
			r.Tracker.CompletenessRatio*100, r.Tracker.ConfidenceLevel)
		if len(r.Tracker.MissingCriticalFields) > 0 {
			fmt.Printf("   Missing:    %v\n", r.Tracker.MissingCriticalFields)
		}
		fmt.Printf("   Last reply: %s\n", truncate(r.LastReply, 120))
		fmt.Printf("   Facts:\n%s\n\n", indent(r.Facts.JSON(), "     "))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
