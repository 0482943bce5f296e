package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/equaliser/intake-agent/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing intake
sessions, report generation, and knowledge base search as tools for AI agents.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr; stdout carries the protocol.
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger, appOptions{Database: true})
		if err != nil {
			return err
		}
		defer a.Close()

		var search mcpserver.Searcher
		if a.retriever != nil {
			search = a.retriever
		} else {
			fmt.Fprintf(os.Stderr, "Warning: knowledge base unavailable. Run `intake ingest` to build it.\n")
		}

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "intake MCP server started on stdio (documents=%d)\n", a.knowledgeCount())

		srv := mcpserver.NewServer(a.service, a.reports, search)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
