package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "profile-enricher",
	Short: "Contact profile extraction across scraping and AI providers",
	Long:  "Extracts contact profiles from URLs by walking a scored fallback chain of conventional scrapers and AI extractors, under confidence thresholds, retries, caching and spend budgets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providersFile, "providers", "", "YAML file of provider definitions (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
