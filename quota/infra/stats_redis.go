package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"logquota/quota/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore conta decisões em hashes do Redis:
//
//	<prefix>:total                 allowed/denied (cumulativo)
//	<prefix>:source                <source>:allowed / <source>:denied
//	<prefix>:day:<YYYYMMDD>        allowed/denied por dia (expira em ttl)
//	<prefix>:key:<identifier>      allowed/denied por identificador (opcional)
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves por dia / por identificador.
	// total é cumulativo e não expira.
	ttl time.Duration

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "logquota:stats",
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	dayKey := fmt.Sprintf("%s:day:%s", s.prefix, at.UTC().Format("20060102"))
	pipe.HIncrBy(ctx, dayKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}

	if src := strings.TrimSpace(ev.Source); src != "" {
		pipe.HIncrBy(ctx, s.prefix+":source", src+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
