package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/usage"
)

var servePort int

const defaultShutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for scraping, usage and provider administration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		a, err := prepare(cfg, "serve")
		if err != nil {
			return err
		}

		go usage.NewScheduler(a.tracker, cfg.Usage.TickInterval).Run(ctx)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: newRouter(a),
		}

		// Graceful shutdown
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			timeout := cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = defaultShutdownTimeout
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			shutdownApp(shutdownCtx, a)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stop()
			<-done
			return eris.Wrap(err, "server listen")
		}
		<-done
		return nil
	},
}

// shutdownApp drains the orchestrator and exports usage history when an
// export path is configured.
func shutdownApp(ctx context.Context, a *app) {
	if err := a.Close(); err != nil {
		zap.L().Warn("close orchestrator", zap.Error(err))
	}
	path := a.cfg.Usage.ExportPath
	if path == "" {
		return
	}
	if err := a.tracker.ExportSQLite(ctx, path); err != nil {
		zap.L().Error("usage export failed", zap.String("path", path), zap.Error(err))
		return
	}
	zap.L().Info("usage exported", zap.String("path", path))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
