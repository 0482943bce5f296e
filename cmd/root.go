package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Conversational legal intake agent",
	Long: `Intake interviews a client about their legal situation, gathers the
facts a lawyer needs into a structured record, and drafts a multi-section
intake report once enough is known. It runs as an interactive chat, an
HTTP and websocket server, or an MCP server for AI agents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error it returns.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
