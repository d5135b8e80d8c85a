package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/listing-matcher/internal/app"
	"github.com/listing-matcher/internal/config"
	"github.com/listing-matcher/internal/debug"
	"github.com/listing-matcher/internal/logging"
	"github.com/listing-matcher/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	debug.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open matcher: %w", err)
	}
	defer a.Close()

	webConfig := web.ConfigFrom(cfg)
	logger.Info().
		Bool("export", webConfig.Features.ExportEnabled).
		Bool("auto_retrain", webConfig.Features.AutoRetrain).
		Bool("auth", webConfig.Auth.APIKey != "").
		Strs("cors_origins", webConfig.Server.CORSAllowedOrigins).
		Msg("features enabled")

	return web.NewServer(webConfig, a).Start(ctx)
}
