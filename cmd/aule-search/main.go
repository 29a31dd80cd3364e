package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "aule-search",
	Short: "Multi-model AI search orchestration server",
	Long: `aule-search routes search queries across configured language-model
backends, with reasoning pipelines, streaming and multi-model debates.

Examples:
  aule-search serve --config ./aule-search.yaml
  aule-search encrypt-key sk-...
  aule-search providers`,
	Version: version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $AULE_CONFIG, ./aule-search.yaml, ~/.config/aule-search/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(encryptKeyCmd)
	rootCmd.AddCommand(providersCmd)
}
