package infra

import (
	"context"
	"sync"
	"time"

	"logquota/quota/domain"

	"golang.org/x/time/rate"
)

// ThrottleStore é um token bucket por chave (x/time/rate) que corta rajadas
// antes de chegar ao gate de cota e ao banco. Não substitui a cota diária:
// só protege o storage de floods de um mesmo cliente.
type ThrottleStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*throttleEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	clock        domain.Clock
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ThrottleOption func(*ThrottleStore)

func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(s *ThrottleStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) ThrottleOption {
	return func(s *ThrottleStore) { s.cleanupEvery = d }
}

func WithThrottleClock(c domain.Clock) ThrottleOption {
	return func(s *ThrottleStore) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewThrottleStore(rps float64, burst int, opts ...ThrottleOption) *ThrottleStore {
	s := &ThrottleStore{
		entries:      make(map[domain.Key]*throttleEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		clock:        domain.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ThrottleStore) RPS() float64 { return float64(s.rps) }
func (s *ThrottleStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *ThrottleStore) Get(key domain.Key) domain.Limiter {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	return throttle{lim: ent.lim, clock: s.clock}
}

// throttle consome tokens no instante do relógio da store.
type throttle struct {
	lim   *rate.Limiter
	clock domain.Clock
}

func (t throttle) Allow() bool { return t.lim.AllowN(t.clock.Now(), 1) }

func (s *ThrottleStore) Cleanup() {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *ThrottleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *ThrottleStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
