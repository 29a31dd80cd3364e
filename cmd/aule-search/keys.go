package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/manthysbr/aulesearch/internal/adapters/providers"
	appconfig "github.com/manthysbr/aulesearch/internal/config"
	"github.com/manthysbr/aulesearch/internal/core/domain"
)

var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key <api-key>",
	Short: "Encrypt an API key for use as an enc: value in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sk, err := appconfig.NewSecretKey()
		if err != nil {
			return fmt.Errorf("failed to init secret key: %w", err)
		}
		enc, err := sk.Encrypt(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), enc)
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and validate the configured models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		factory := providers.NewModelFactory(slog.Default())

		out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(out, "PROVIDER\tMAX TOKENS\tSTREAMING\tFUNCTIONS\tVISION")
		for _, p := range factory.SupportedProviders() {
			caps, _ := factory.ModelCapabilities(p)
			fmt.Fprintf(out, "%s\t%d\t%t\t%t\t%t\n", p, caps.MaxTokens, caps.SupportsStreaming, caps.SupportsFunctionCalling, caps.SupportsVision)
		}
		if err := out.Flush(); err != nil {
			return err
		}

		path, err := appconfig.FindConfig(configPath)
		if err != nil || path == "" {
			return err
		}
		cfg, err := appconfig.Load(path)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nmodels in %s:\n", path)
		for _, m := range cfg.Models {
			status := "ok"
			err := factory.ValidateModelConfig(domain.ModelConfig{
				ID:       m.ID,
				Name:     m.Name,
				Provider: m.Provider,
				Version:  m.Version,
			})
			if err != nil {
				status = err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %-10s %s\n", m.ID, m.Provider, status)
		}
		return nil
	},
}
