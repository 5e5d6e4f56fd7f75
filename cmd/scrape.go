package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
)

var (
	scrapeURL      string
	scrapeOptions  []string
	scrapeTimeout  time.Duration
	scrapeProgress bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract one contact profile and print the response as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := parseOptions(scrapeOptions)
		if err != nil {
			return err
		}

		a, err := prepare(cfg, "scrape")
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		var progress model.ProgressFunc
		if scrapeProgress {
			progress = func(p model.Progress) {
				zap.L().Info("progress",
					zap.String("stage", string(p.Stage)),
					zap.Float64("percent", p.Percent),
					zap.Any("details", p.Details),
				)
			}
		}

		req := model.ScrapeRequest{URL: scrapeURL, Options: opts, Timeout: scrapeTimeout}
		resp, err := a.orch.Scrape(ctx, req, progress)
		if resp != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(resp); encErr != nil {
				return eris.Wrap(encErr, "encode response")
			}
		}
		if err != nil {
			return err
		}
		if !resp.Success {
			return eris.Errorf("scrape failed: %s", resp.Error.Message)
		}
		return nil
	},
}

// parseOptions turns repeated key=value flags into request options.
func parseOptions(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("invalid option %q: want key=value", kv)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "profile URL to extract")
	scrapeCmd.Flags().StringArrayVar(&scrapeOptions, "option", nil, "request option as key=value (repeatable)")
	scrapeCmd.Flags().DurationVar(&scrapeTimeout, "timeout", 0, "per-attempt timeout (default from provider config)")
	scrapeCmd.Flags().BoolVar(&scrapeProgress, "progress", false, "log progress stages")
	_ = scrapeCmd.MarkFlagRequired("url")
	scrapeCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(scrapeCmd)
}
