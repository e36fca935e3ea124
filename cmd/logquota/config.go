package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"logquota/quota/domain"

	"github.com/Netflix/go-env"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:4000"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	StorageBackend   string        `env:"STORAGE_BACKEND,default=postgres"`
	StorageTimeout   time.Duration `env:"STORAGE_TIMEOUT,default=5s"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	SchemaAutoCreate bool          `env:"SCHEMA_AUTO_CREATE,default=true"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB,default=0"`
	RedisPrefix      string        `env:"REDIS_PREFIX,default=logquota"`

	QuotaLimit      int           `env:"QUOTA_LIMIT,default=3"`
	QuotaWindow     string        `env:"QUOTA_WINDOW,default=calendar"`
	QuotaWindowSize time.Duration `env:"QUOTA_WINDOW_SIZE,default=24h"`
	QuotaTimezone   string        `env:"QUOTA_TIMEZONE,default=UTC"`
	QuotaHeaders    bool          `env:"ADD_QUOTA_HEADERS,default=false"`

	TrustXFF bool `env:"TRUST_XFF,default=true"`

	// IMPORTANTE: o throttle é só um corte de rajada na frente do gate; a cota
	// diária continua valendo. Desligado por padrão.
	RateEnabled bool          `env:"RATE_ENABLED,default=false"`
	RateRPS     float64       `env:"RATE_RPS,default=1"`
	RateBurst   int           `env:"RATE_BURST,default=5"`
	RetryAfter  time.Duration `env:"RETRY_AFTER,default=1s"`

	ConcurrencyMax     int           `env:"CONCURRENCY_MAX,default=100"`
	ConcurrencyTimeout time.Duration `env:"CONCURRENCY_TIMEOUT,default=0s"`

	StatsRedisEnabled bool          `env:"STATS_REDIS_ENABLED,default=false"`
	StatsPrefix       string        `env:"STATS_PREFIX,default=logquota:stats"`
	StatsTTL          time.Duration `env:"STATS_TTL,default=168h"`
	StatsTrackKeys    bool          `env:"STATS_TRACK_KEYS,default=false"`
}

func readConfig() (config, error) {
	var cfg config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	switch cfg.StorageBackend {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return config{}, errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return config{}, errors.New("REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	case "memory":
	default:
		return config{}, fmt.Errorf("STORAGE_BACKEND must be postgres, redis or memory, got %q", cfg.StorageBackend)
	}

	if cfg.StatsRedisEnabled && strings.TrimSpace(cfg.RedisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when STATS_REDIS_ENABLED=true")
	}
	if cfg.QuotaLimit <= 0 {
		return config{}, errors.New("QUOTA_LIMIT must be > 0")
	}
	if cfg.StorageTimeout <= 0 {
		return config{}, errors.New("STORAGE_TIMEOUT must be > 0")
	}
	if _, err := cfg.window(); err != nil {
		return config{}, err
	}
	if cfg.RateEnabled && cfg.RateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.RateEnabled && cfg.RateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.ConcurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

// window monta a janela de cota a partir de QUOTA_WINDOW, QUOTA_WINDOW_SIZE e QUOTA_TIMEZONE.
func (c config) window() (domain.Window, error) {
	mode, err := domain.ParseWindowMode(c.QuotaWindow)
	if err != nil {
		return domain.Window{}, fmt.Errorf("QUOTA_WINDOW: %w", err)
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return domain.Window{}, fmt.Errorf("QUOTA_TIMEZONE: %w", err)
	}
	if mode == domain.WindowRolling && c.QuotaWindowSize <= 0 {
		return domain.Window{}, errors.New("QUOTA_WINDOW_SIZE must be > 0")
	}
	return domain.Window{Mode: mode, Size: c.QuotaWindowSize, Location: loc}, nil
}
