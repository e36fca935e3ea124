package main

import (
	"context"
	"fmt"
	"log/slog"

	"logquota/quota/domain"
	"logquota/quota/infra"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// openLedger conecta no backend configurado e devolve o ledger e a função de fechamento.
// O handle de storage nasce aqui e é passado adiante; nada fica em variável global.
func openLedger(ctx context.Context, cfg config, log *slog.Logger, opts ...infra.LedgerOption) (domain.Ledger, func(), error) {
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("ledger ready", "backend", "postgres", "schema_version", infra.LogsSchema.Version)
		return infra.NewPostgresLedger(pool, opts...), pool.Close, nil

	case "redis":
		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("ledger ready", "backend", "redis", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		l := infra.NewRedisLedger(rdb, []infra.RedisLedgerOption{infra.WithLedgerPrefix(cfg.RedisPrefix)}, opts...)
		return l, func() { _ = rdb.Close() }, nil

	default:
		log.Warn("ledger ready", "backend", "memory", "durable", false)
		return infra.NewMemoryLedger(opts...), func() {}, nil
	}
}

func openPostgres(ctx context.Context, cfg config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if pcfg.ConnConfig.ConnectTimeout == 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.StorageTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if cfg.SchemaAutoCreate {
		if err := infra.EnsureSchema(pingCtx, pool, infra.LogsSchema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	if err := infra.CheckSchema(pingCtx, pool, infra.LogsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, cfg config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.StorageTimeout,
		ReadTimeout:  cfg.StorageTimeout,
		WriteTimeout: cfg.StorageTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
