package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/progress"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run an intake conversation in the terminal",
	Long: `Starts a new intake session and chats with it on the terminal until the
session completes or you press Ctrl+D. Pass --report to draft the intake
report when the conversation ends.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringP("report", "o", "", "write the report to this file (.md, .html or .pdf) when the session ends")
	chatCmd.Flags().Bool("force", false, "write the report even if the session did not complete")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	reportPath, _ := cmd.Flags().GetString("report")
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Keep the terminal readable; -v still shows everything.
	if !verbose {
		cfg.Log.Level = "warn"
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, appOptions{Reporter: progress.NewReporter("Drafting report")})
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.service.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	fmt.Printf("\n%s\n\n", intake.Greeting)

	for {
		prompt := promptui.Prompt{Label: "You"}
		input, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			fmt.Println()
			break
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		reply, err := a.service.ProcessTurn(ctx, snap.ID, input)
		if err != nil {
			return fmt.Errorf("processing message: %w", err)
		}
		fmt.Printf("\nEqualiser: %s\n\n", reply.Message)
		if reply.Complete {
			break
		}
	}
	a.printUsage()

	if reportPath == "" {
		return nil
	}
	final, err := a.service.Session(ctx, snap.ID)
	if err != nil {
		return err
	}
	if !final.Complete() && !force {
		fmt.Fprintln(os.Stderr, "Session did not complete; skipping the report. Use --force to write it anyway.")
		return nil
	}
	doc, err := a.pipeline.Generate(ctx, "", final.Memory.Full, final.Facts)
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	return writeReportFile(ctx, reportPath, doc.Title, doc.Markdown)
}
