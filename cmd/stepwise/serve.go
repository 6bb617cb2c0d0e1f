package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/internal/cli"
	"github.com/aretw0/stepwise/internal/presentation/tui"
	httpAdapter "github.com/aretw0/stepwise/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the Stepwise engine as an HTTP server. Editors drive sessions through the
JSON API and follow them over Server-Sent Events; sandboxes attach over WebSocket
unless a local process runner is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Log.File, _ = cmd.Flags().GetString("log-file")
		}

		logger, closer, err := cli.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()

		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			return err
		}
		closeApp := sync.OnceFunc(func() { app.Close(context.Background()) })
		defer closeApp()

		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if app.Hub != nil {
			opts = append(opts, httpAdapter.WithSandboxHub(app.Hub))
		}
		if app.Metrics != nil {
			opts = append(opts, httpAdapter.WithMetrics(app.Metrics.Handler()))
		}
		handler, err := httpAdapter.NewHandler(app.Engine, opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		// Event streams and sandbox sockets only end when their session does.
		srv.RegisterOnShutdown(closeApp)

		out := cmd.OutOrStdout()
		tui.PrintBanner(out, stepwise.Version)

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			cli.PrintSystemMessage(out, "Listening on %s", srv.Addr)
			cli.PrintSystemMessage(out, "Serving lessons from %s", cfg.Lessons.Dir)
			serverErrors <- srv.ListenAndServe()
		}()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sigCtx.Done():
			cli.PrintSystemMessage(out, "Shutting down (%v)...", sigCtx.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("closing server", "err", err)
				}
			}
			cli.PrintSystemMessage(out, "Stepwise server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().String("log-file", "", "Write JSON logs to a rotating file instead of stderr")
}
