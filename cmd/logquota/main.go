package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"logquota/quota"
	"logquota/quota/application"
	"logquota/quota/domain"
	"logquota/quota/infra"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env é opcional; variáveis já exportadas têm prioridade.
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	window, err := cfg.window()
	if err != nil {
		return err
	}
	clock := domain.SystemClock

	ledger, closeLedger, err := openLedger(ctx, cfg, log, infra.WithClock(clock), infra.WithWindow(window))
	if err != nil {
		return err
	}
	defer closeLedger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promStats, err := infra.NewPrometheusStats(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	stats := domain.MultiStats{promStats}

	if cfg.StatsRedisEnabled {
		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			return fmt.Errorf("redis stats: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsTrackKeys(cfg.StatsTrackKeys),
		))
	}

	gate := application.Gate{
		Ledger:  ledger,
		Limit:   cfg.QuotaLimit,
		Timeout: cfg.StorageTimeout,
		Stats:   stats,
	}

	keyFn := quota.DefaultKeyFunc(cfg.TrustXFF)
	logMiddleware := []func(http.Handler) http.Handler{
		quota.ConcurrencyMiddleware(quota.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
			Stats:          stats,
			KeyFn:          keyFn,
		}),
	}
	if cfg.RateEnabled {
		store := infra.NewThrottleStore(cfg.RateRPS, cfg.RateBurst)
		store.StartJanitor(ctx)
		// throttle antes da concorrência: rajada recusada não ocupa vaga.
		logMiddleware = append([]func(http.Handler) http.Handler{quota.Middleware(quota.Options{
			Store:        store,
			Stats:        stats,
			KeyFn:        keyFn,
			RejectStatus: http.StatusTooManyRequests,
			RetryAfter:   cfg.RetryAfter,
		})}, logMiddleware...)
	}

	mux := quota.NewMux(quota.Routes{
		Log: quota.NewHandler(quota.HandlerOptions{
			Gate:            gate,
			KeyFn:           keyFn,
			Logger:          log,
			AddQuotaHeaders: cfg.QuotaHeaders,
		}),
		Health:        quota.HealthHandler(ledger, cfg.StorageTimeout, log),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		LogMiddleware: logMiddleware,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           quota.Recover(log)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("logquota listening",
		"addr", cfg.ListenAddr,
		"backend", cfg.StorageBackend,
		"limit", cfg.QuotaLimit,
		"window", window.Mode,
		"timezone", window.Location.String(),
		"trust_xff", cfg.TrustXFF,
	)
	log.Info("throttle", "enabled", cfg.RateEnabled, "rps", cfg.RateRPS, "burst", cfg.RateBurst)
	log.Info("concurrency", "max", cfg.ConcurrencyMax, "acquire_timeout", cfg.ConcurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("logquota stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
