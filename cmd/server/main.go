package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beliczki/transcriber/internal/arbiter"
	"github.com/beliczki/transcriber/internal/config"
	"github.com/beliczki/transcriber/internal/dispatch"
	"github.com/beliczki/transcriber/internal/engine"
	"github.com/beliczki/transcriber/internal/events"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/pipeline"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/session"
	"github.com/beliczki/transcriber/internal/store"
	"github.com/beliczki/transcriber/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Strs("engines", cfg.Engines).
		Str("arbiter_endpoint", cfg.ArbiterEndpoint).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Transcriber service starting")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	engines, closers, err := buildEngines(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build engines")
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing engine")
			}
		}
	}()

	dispatcher := dispatch.New(engines, time.Duration(cfg.EngineTimeout)*time.Second)

	var arb arbiter.Arbiter
	if cfg.ArbiterEndpoint != "" {
		breaker := resilience.NewCircuitBreaker("arbiter",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
		arb = arbiter.NewOllama(cfg.ArbiterEndpoint, cfg.ArbiterModel, cfg.PrimaryEngine(),
			time.Duration(cfg.ArbiterTimeout)*time.Second, breaker)
		logger.Info().Str("endpoint", cfg.ArbiterEndpoint).Str("model", cfg.ArbiterModel).Msg("Arbiter configured")
	} else {
		logger.Info().Msg("No arbiter configured, using deterministic fallback merge")
	}

	var archive *store.Store
	if cfg.StoreEnabled {
		archive, err = store.Open(ctx, cfg.DatabasePath, cfg.RetentionDays)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open archive database")
		}
		defer archive.Close()
	}

	publisher := events.New(&events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		Enabled: cfg.KafkaEnabled,
	})
	defer publisher.Close()

	registry := session.NewRegistry(cfg.ContextWindow, cfg.MaxConcurrentSessions,
		time.Duration(cfg.SessionTimeoutMinutes)*time.Minute)

	opts := pipeline.Options{
		Dispatcher:     dispatcher,
		Sessions:       registry,
		Arbiter:        arb,
		ArbiterTimeout: time.Duration(cfg.ArbiterTimeout) * time.Second,
		Publish:        publisher,
		PrimaryEngine:  cfg.PrimaryEngine(),
		MaxChunkBytes:  cfg.MaxChunkBytes,
		SampleRate:     cfg.SampleRate,
	}
	if archive != nil {
		opts.Archive = archive
	}
	pipe := pipeline.New(opts)

	// Expired sessions get the same teardown as explicit stops.
	registry.StartJanitor(ctx, time.Minute, func(sess *session.Context) {
		if archive != nil {
			if err := archive.EndSession(ctx, sess.ID, store.StatusTimeout); err != nil {
				logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to archive session timeout")
			}
		}
		_ = publisher.PublishSession(ctx, events.TypeSessionEnded, sess.ID, "timeout")
	})

	mux := http.NewServeMux()

	var summary transport.Summarizer
	if archive != nil {
		summary = archive
	}
	mux.Handle("/v1/transcribe", transport.NewHandler(pipe, summary))

	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"engines": func(ctx context.Context) (bool, error) {
			if len(engines) == 0 {
				return false, fmt.Errorf("no engines configured")
			}
			return true, nil
		},
	}
	if archive != nil {
		checks["store"] = func(ctx context.Context) (bool, error) {
			if _, err := archive.SessionSummary(ctx, "00000000-0000-0000-0000-000000000000"); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/v1/transcribe", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// buildEngines instantiates the configured engine adapters in priority
// order. The first engine is the primary for fallback tie-breaks.
func buildEngines(cfg *config.Config) ([]engine.Engine, []interface{ Close() error }, error) {
	var engines []engine.Engine
	var closers []interface{ Close() error }
	for _, name := range cfg.Engines {
		switch name {
		case "deepgram":
			e := engine.NewDeepgram(cfg)
			engines = append(engines, e)
			closers = append(closers, e)
		case "assemblyai":
			e := engine.NewAssemblyAI(cfg)
			engines = append(engines, e)
			closers = append(closers, e)
		case "mock":
			engines = append(engines, engine.NewMock("mock"))
		default:
			return nil, nil, fmt.Errorf("unknown engine: %s", name)
		}
	}
	return engines, closers, nil
}
