package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/memory"
	"github.com/equaliser/intake-agent/internal/progress"
	"github.com/equaliser/intake-agent/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [transcript]",
	Short: "Draft an intake report from a transcript or a stored session",
	Long: `Drafts the multi-section intake report.

With a transcript file (a YAML or JSON array), a transcript holding only user
messages is replayed through a new session first; a full conversation with
assistant messages has its facts extracted directly. With --session the
report is drafted for a stored session and saved alongside it.

The output format follows the file extension: .md, .html or .pdf.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("session", "", "stored session ID to report on (needs session_store: sqlite)")
	reportCmd.Flags().StringP("output", "o", "intake-report.md", "output file (.md, .html or .pdf)")
	reportCmd.Flags().Bool("force", false, "report on a session that has not completed")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if (len(args) == 0) == (sessionID == "") {
		return fmt.Errorf("give either a transcript file or --session")
	}
	if _, err := reportFormat(output); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger, appOptions{
		Database: sessionID != "",
		Reporter: progress.NewReporter("Drafting report"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.printUsage()

	var title, md string
	if sessionID != "" {
		rep, err := a.reports.Generate(ctx, sessionID, force)
		if err != nil {
			return fmt.Errorf("generating report for %s: %w", sessionID, err)
		}
		title, md = rep.Title, rep.Markdown
	} else {
		conversation, record, err := conversationFromTranscript(ctx, a, args[0])
		if err != nil {
			return err
		}
		doc, err := a.pipeline.Generate(ctx, "", conversation, record)
		if err != nil {
			return fmt.Errorf("generating report: %w", err)
		}
		title, md = doc.Title, doc.Markdown
	}
	return writeReportFile(ctx, output, title, md)
}

// conversationFromTranscript returns the conversation and facts a report is
// drafted from.
func conversationFromTranscript(ctx context.Context, a *app, path string) ([]memory.Message, facts.Record, error) {
	messages, err := loadTranscript(path)
	if err != nil {
		return nil, facts.Record{}, err
	}
	if hasAssistant(messages) {
		record, err := a.extractor.ExtractFacts(ctx, messages, facts.Record{})
		if err != nil {
			return nil, facts.Record{}, fmt.Errorf("extracting facts: %w", err)
		}
		return messages, record, nil
	}

	res, err := replayTranscript(ctx, a, path, userMessages(messages))
	if err != nil {
		return nil, facts.Record{}, err
	}
	snap, err := a.service.Session(ctx, res.SessionID)
	if err != nil {
		return nil, facts.Record{}, err
	}
	return snap.Memory.Full, snap.Facts, nil
}

type outputFormat int

const (
	formatMarkdown outputFormat = iota
	formatHTML
	formatPDF
)

func reportFormat(path string) (outputFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return formatMarkdown, nil
	case ".html", ".htm":
		return formatHTML, nil
	case ".pdf":
		return formatPDF, nil
	default:
		return 0, fmt.Errorf("unsupported report format %q: use .md, .html or .pdf", filepath.Ext(path))
	}
}

// writeReportFile renders the report markdown in the format implied by
// path's extension.
func writeReportFile(ctx context.Context, path, title, md string) error {
	format, err := reportFormat(path)
	if err != nil {
		return err
	}

	data := []byte(md)
	if format != formatMarkdown {
		if data, err = report.RenderHTML(title, md, time.Now()); err != nil {
			return err
		}
	}
	if format == formatPDF {
		if data, err = report.RenderPDF(ctx, data); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	return nil
}
