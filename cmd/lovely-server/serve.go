package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/routes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, opts)
			if err != nil {
				return err
			}

			logger, err := initLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize dependencies", zap.Error(err))
				return err
			}

			ln, err := net.Listen("tcp", cfg.Server.Address())
			if err != nil {
				_ = deps.Close(context.Background())
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address(), err)
			}

			return runServer(ctx, deps, ln)
		},
	}
}

// runServer serves on ln with the background workers until ctx is done,
// then shuts everything down. deps is closed on return.
func runServer(ctx context.Context, deps *app.Dependencies, ln net.Listener) error {
	cfg := deps.Config
	logger := deps.Logger

	srv := &http.Server{
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening",
			zap.String("address", ln.Addr().String()),
			zap.String("data_dir", cfg.Storage.DataDir),
			zap.String("version", app.Version))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return deps.Watcher.Run(gctx)
	})

	if deps.Syncer != nil {
		g.Go(func() error {
			return deps.Syncer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// end the update streams first so Shutdown is not held by them
		deps.Events.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := deps.Close(context.Background()); closeErr != nil {
		logger.Error("failed to close dependencies", zap.Error(closeErr))
	}
	if err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
