// amlsift - transaction risk analysis for AML investigations
package main

import (
	"context"
	"os"

	"github.com/amlsift/amlsift/internal/config"
	"github.com/amlsift/amlsift/internal/logging"
	"github.com/amlsift/amlsift/internal/server"
	"github.com/amlsift/amlsift/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting amlsift",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"scorer_url", cfg.ScorerURL,
		"score_concurrency", cfg.ScoreConcurrency,
	)

	ctx := context.Background()

	// Tracing (no-op unless an OTLP endpoint is configured)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTraces(context.Background()); err != nil {
				logger.Warn("trace shutdown error", "error", err)
			}
		}()
	}

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
