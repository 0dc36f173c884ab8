package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/delverbot/delver/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the research HTTP API",
		Long: `Starts the HTTP server exposing research runs, topic status, and
Prometheus metrics. Runs until interrupted; in-flight research runs are
abandoned on shutdown and their dispatched questions reclaimed by the next
deep phase.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			server := api.NewServer(app.orch, app.store, api.Config{
				RequestTimeout: time.Duration(app.cfg.Server.TimeoutSeconds) * time.Second,
				APIKey:         apiKeyIfEnabled(app),
			}, app.logger)

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				app.logger.Info("http server listening", zap.Int("port", app.cfg.Server.Port))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			app.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func apiKeyIfEnabled(app *application) string {
	if !app.cfg.Auth.Enabled {
		return ""
	}
	return app.cfg.Auth.APIKey
}
