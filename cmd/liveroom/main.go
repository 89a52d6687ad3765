package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"liveroom/internal/app"
	"liveroom/internal/config"
	"liveroom/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "liveroom: %+v\n", err)
		os.Exit(1)
	}
}

// run returns once ctx is cancelled and every component has stopped.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("liveroom", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML or JSON config file (default $"+config.FileEnv+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer func() { _ = closeLog() }()

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undo()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create application")
	}
	return application.Run(ctx)
}
