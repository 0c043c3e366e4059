package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/artist-trends/internal/api/http"
	"github.com/i474232898/artist-trends/internal/config"
	"github.com/i474232898/artist-trends/internal/logging"
	"github.com/i474232898/artist-trends/internal/pacing"
	"github.com/i474232898/artist-trends/internal/scheduler"
	"github.com/i474232898/artist-trends/internal/trends"
	"github.com/i474232898/artist-trends/internal/trends/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// One provider client per process, shared read-only across requests.
	google := providers.NewGoogleTrendsProvider(httpClient, providers.GoogleTrendsConfig{
		BaseURL:    cfg.ProviderBaseURL,
		Language:   cfg.ProviderLanguage,
		TZ:         cfg.ProviderTZ,
		MaxRetries: cfg.ProviderMaxRetries,
	}, logger)

	gate := pacing.NewGate(cfg.ProviderDelay, cfg.ProviderMinInterval)
	service := trends.NewService(google, gate, logger)

	sched := scheduler.New([]scheduler.Refresher{google}, cfg.SessionRefreshInterval, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, logger, httpapi.Options{AccessLog: true})

	logger.Info().
		Str("addr", cfg.Addr()).
		Dur("provider_delay", cfg.ProviderDelay).
		Strs("endpoints", []string{
			"GET /health",
			"GET /trends/interest?artist=<name>",
			"GET /trends/regional?artist=<name>",
			"GET /trends/related?artist=<name>",
			"GET /trends/trending?country=<code>",
		}).
		Msg("starting artist trends service")

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
