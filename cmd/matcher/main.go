package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/config"
	"github.com/listing-matcher/internal/debug"
	"github.com/listing-matcher/internal/logging"
)

var (
	// Global application, opened before every subcommand
	application *app.App
	cfg         *config.Config
	logger      zerolog.Logger
	localDebug  bool
	envFile     string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command and always releases the application, whether the command failed or not
func run(ctx context.Context, args []string) error {
	defer closeApplication()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "Real-estate listing address matcher",
		Long:  `Matches scraped real-estate listings to reference addresses, learns from operator feedback and consolidates duplicate listings`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&localDebug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file")

	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createFeedbackCmd())
	rootCmd.AddCommand(createRetrainCmd())
	rootCmd.AddCommand(createModelCmd())
	rootCmd.AddCommand(createConsolidateCmd())
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createStatsCmd())
	rootCmd.AddCommand(createExportCmd())
	rootCmd.AddCommand(createHistoryCmd())

	return rootCmd
}

// closeApplication closes the database and MQTT handles opened by setup
func closeApplication() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close matcher")
	}
	application = nil
}

// setup loads configuration, builds the logger and opens the application
func setup(ctx context.Context) error {
	var paths []string
	if envFile != "" {
		paths = append(paths, envFile)
	}
	if err := config.LoadEnv(paths...); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if localDebug {
		level = "debug"
	}
	logger, err = logging.New(cfg.Environment, level)
	if err != nil {
		return err
	}
	debug.SetLogger(logger)

	application, err = app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open matcher: %w", err)
	}
	return nil
}

// printJSON writes v to stdout as indented JSON
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
