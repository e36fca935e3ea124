package application

import (
	"context"
	"time"

	"logquota/quota/domain"
)

// Throttle concentra a regra do corte de rajadas por cliente, que roda antes
// do Gate. Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Throttle struct {
	Store      domain.LimiterStore
	Stats      domain.StatsStore
	RetryAfter time.Duration
}

func (s Throttle) Decide(ctx context.Context, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	dec := domain.Decision{Allowed: true}
	if lim := s.Store.Get(key); lim != nil && !lim.Allow() {
		dec = domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
	}
	if s.Stats != nil {
		_ = s.Stats.Record(ctx, domain.StatsEvent{
			Key:     key,
			Allowed: dec.Allowed,
			Source:  "throttle",
			At:      time.Now(),
		})
	}
	return dec
}
