// Package main is the entry point for the chat relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatrelay/config"
	"chatrelay/internal/logging"
	"chatrelay/internal/observability"
	"chatrelay/internal/resilience"
	"chatrelay/internal/respcache"
	"chatrelay/internal/server"
	"chatrelay/internal/upstream/openai"
	"chatrelay/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Format, cfg.Logging.Level)

	slog.Info("starting chatrelay",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	if cfg.OpenAI.APIKey == "" {
		slog.Error("OPENAI_API_KEY must be set")
		os.Exit(1)
	}

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: CHATRELAY_MASTER_KEY not set - server running without authentication",
			"recommendation", "set CHATRELAY_MASTER_KEY to secure this relay")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New(prometheus.DefaultRegisterer)
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	store, err := newStore(cfg)
	if err != nil {
		slog.Error("failed to initialize cache store", "error", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
		slog.Info("response cache enabled",
			"backend", cfg.Cache.Backend,
			"ttl", cfg.Cache.TTL,
		)
	} else {
		slog.Info("response cache disabled")
	}

	adapter := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})

	breaker := resilience.NewBreaker("openai", resilience.BreakerConfig{
		WindowSize:           cfg.Resilience.BreakerWindowSize,
		FailureRateThreshold: cfg.Resilience.BreakerFailureRate,
		MinimumCalls:         cfg.Resilience.BreakerMinCalls,
		OpenTimeout:          cfg.Resilience.BreakerOpenTimeout,
		HalfOpenMaxCalls:     cfg.Resilience.BreakerHalfOpenCalls,
		OnStateChange:        breakerStateLogger(metrics),
	})

	retryPolicy := resilience.DefaultRetryPolicy()
	retryPolicy.MaxAttempts = cfg.Resilience.MaxAttempts
	retryPolicy.InitialInterval = cfg.Resilience.InitialBackoff

	wrapperOpts := []resilience.Option{
		resilience.WithRetryPolicy(retryPolicy),
		resilience.WithMetrics(metrics),
	}
	if cfg.Resilience.FallbackMessage != "" {
		wrapperOpts = append(wrapperOpts, resilience.WithFallbackMessage(cfg.Resilience.FallbackMessage))
	}
	wrapper := resilience.NewWrapper(adapter, breaker, wrapperOpts...)

	service := respcache.NewService(wrapper, store, metrics)

	serverCfg := &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
		RequestTimeout:  cfg.Server.RequestTimeout,
	}
	srv := server.New(service, metrics, serverCfg)

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// newStore builds the response cache store selected by config.
// Returns nil when caching is disabled.
func newStore(cfg *config.Config) (respcache.Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendOff:
		return nil, nil
	case config.CacheBackendRedis:
		return respcache.NewRedisStore(respcache.RedisConfig{
			URL: cfg.Cache.RedisURL,
			TTL: cfg.Cache.TTL,
		})
	default:
		return respcache.NewMemoryStore(respcache.MemoryConfig{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		}), nil
	}
}

// breakerStateLogger exports breaker transitions to the log and metrics.
func breakerStateLogger(metrics *observability.Metrics) func(name string, from, to resilience.State) {
	codes := map[resilience.State]float64{
		resilience.StateClosed:   observability.BreakerClosed,
		resilience.StateOpen:     observability.BreakerOpen,
		resilience.StateHalfOpen: observability.BreakerHalfOpen,
	}
	return func(name string, from, to resilience.State) {
		slog.Warn("circuit breaker state change",
			"name", name,
			"from", from.String(),
			"to", to.String(),
		)
		metrics.SetBreakerState(name, codes[to])
	}
}
