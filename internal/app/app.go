// Package app is the transfer-helper command line.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LehuyH/transfer-helper/internal/assist"
	"github.com/LehuyH/transfer-helper/internal/config"
	"github.com/LehuyH/transfer-helper/internal/httpx"
	"github.com/LehuyH/transfer-helper/internal/planner"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

// Main runs the CLI and exits non-zero on error.
func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs once config is loaded.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *sql.DB
	registry *prometheus.Registry
	client   *assist.Client
	svc      *planner.Service
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func NewRootCommand() *cobra.Command {
	var verbose bool
	var cfg config.Config
	var logger *zap.Logger

	root := &cobra.Command{
		Use:           "transfer-helper",
		Short:         "Plan community college courses against transfer major requirements",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = newLogger(cfg.LogLevel, verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	open := func() (*env, error) {
		return openEnv(cfg, logger)
	}

	root.AddCommand(
		newServeCommand(open),
		newCollegesCommand(open),
		newPlanCommand(open),
		newRefreshCommand(open),
	)
	return root
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func openEnv(cfg config.Config, logger *zap.Logger) (*env, error) {
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Debug("config loaded",
		zap.String("data_base_url", cfg.DataBaseURL),
		zap.String("db_path", cfg.DBPath),
		zap.Duration("external_http_timeout", applied),
		zap.Int("fetch_max_attempts", cfg.FetchMaxAttempts),
		zap.Int("fetch_concurrency", cfg.FetchConcurrency),
		zap.Duration("cache_ttl", cfg.CacheTTL()),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Bool("llm", cfg.LLMConfigured()))

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := assist.New(assist.Options{
		BaseURL:       cfg.DataBaseURL,
		HTTPClient:    httpx.ExternalClient(),
		MaxAttempts:   cfg.FetchMaxAttempts,
		Backoff:       cfg.FetchBackoff(),
		RatePerSecond: cfg.FetchRatePerSecond,
		Concurrency:   cfg.FetchConcurrency,
		CacheTTL:      cfg.CacheTTL(),
		Cache:         sqlite.NewAgreementCache(db),
		Metrics:       assist.NewMetrics(reg),
		Logger:        logger,
	})

	return &env{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: reg,
		client:   client,
		svc:      planner.New(db, client, logger),
	}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
