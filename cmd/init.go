package cmd

import (
	"github.com/spf13/cobra"

	"github.com/equaliser/intake-agent/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize intake configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose a model provider, the knowledge base and session storage, and writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
