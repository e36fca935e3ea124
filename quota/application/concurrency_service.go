package application

import (
	"context"
	"time"

	"logquota/quota/domain"
)

// ConcurrencyService limita quantos requests estão dentro do serviço ao mesmo
// tempo (e, portanto, quantas conexões do pool de storage podem ser disputadas),
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida e a recusa
// é registrada em Stats com Source "concurrency".
func (s ConcurrencyService) Acquire(ctx context.Context, key domain.Key) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok && s.Stats != nil {
		_ = s.Stats.Record(ctx, domain.StatsEvent{Key: key, Source: "concurrency", At: time.Now()})
	}
	return release, ok
}
