package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/config"
	"github.com/upb/lovely-prompts/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lovely-server",
		Short: "Store LLM prompts and responses per project and stream their changes",
		Long: `lovely-server keeps chat and completion prompts, and the responses to them,
in one SQLite file per project. Clients write records over HTTP, stream
response edits over a websocket and follow every change as server-sent events.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "TOML config file (default $LOVELY_CONFIG)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding project databases (default $LOVELY_DATA_DIR)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL)")

	serve := newServeCmd(opts)
	cmd.AddCommand(serve)
	cmd.AddCommand(newProjectsCmd(opts))

	// serve is the default command
	cmd.RunE = serve.RunE

	return cmd
}

// loadConfig loads the configuration and applies flag overrides
func loadConfig(ctx context.Context, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.dataDir != "" {
		cfg.Storage.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the zap logger from the observability settings
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}
