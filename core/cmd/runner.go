// Package cmd drives a process from configuration to graceful shutdown.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/shopbot/core/bootstrap"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
)

// App serves until ctx is cancelled.
type App interface {
	Run(ctx context.Context) error
}

type Options struct {
	// ConfigPath wins over the file named by ConfigEnvVar (CONFIG_PATH by
	// default). With neither, configuration comes from the environment only.
	ConfigPath   string
	ConfigEnvVar string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(bootstrap.Options) (*bootstrap.Result, error)
	Build      func(cfg *coreconfig.Config, infra *bootstrap.Result) (App, error)

	ShutdownLogger func() error
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

func (o *Options) defaults() {
	if o.LoadConfig == nil {
		o.LoadConfig = coreconfig.Load
	}
	if o.Bootstrap == nil {
		o.Bootstrap = bootstrap.Run
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	if o.Signals == nil {
		o.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if o.ConfigEnvVar == "" {
		o.ConfigEnvVar = "CONFIG_PATH"
	}
}

func (o *Options) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return os.Getenv(o.ConfigEnvVar)
}

// Run loads configuration, bootstraps infrastructure, builds the app and runs
// it until a shutdown signal. A cancelled run is not an error.
func Run(opts Options) error {
	if opts.Build == nil {
		return errors.New("cmd: Build is required")
	}
	opts.defaults()

	path := opts.configPath()
	if path != "" {
		// the structured logger is not up yet
		log.Printf("shopbot: config %s", path)
	}
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}

	began := time.Now()
	infra, err := opts.Bootstrap(bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	defer teardown(infra, opts.ShutdownLogger)

	app, err := opts.Build(cfg, infra)
	if err != nil {
		return fmt.Errorf("cmd: build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), opts.Signals...)
	defer stop()

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.Duration("startup_duration", time.Since(began)),
	)
	err = app.Run(ctx)
	logger.Info(logger.Detach(ctx), "app", "shutdown", slog.String("status", logger.Status(err)))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func teardown(infra *bootstrap.Result, shutdownLogger func() error) {
	if err := infra.Close(); err != nil {
		logger.Warn(context.Background(), "app", "infra.close_failed", slog.String("err", err.Error()))
	}
	if err := shutdownLogger(); err != nil {
		log.Printf("shopbot: logger shutdown: %v", err)
	}
}
