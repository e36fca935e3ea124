package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"logquota/quota/domain"
)

const (
	DefaultLimit   = 3
	DefaultTimeout = 5 * time.Second
)

// Gate é o único ponto onde admitir/rejeitar é decidido.
//
// Contagem e gravação rodam numa única unidade atômica do ledger
// (CappedLedger.AppendWithin quando o backend oferece, senão Atomically), então
// duas chamadas simultâneas do mesmo identificador nunca enxergam a mesma vaga livre.
// Janela e relógio do RetryAfter vêm do próprio ledger (domain.Windowed).
type Gate struct {
	Ledger  domain.Ledger
	Limit   int
	Timeout time.Duration
	Stats   domain.StatsStore
}

func (g Gate) limit() int {
	if g.Limit <= 0 {
		return DefaultLimit
	}
	return g.Limit
}

func (g Gate) timeout() time.Duration {
	if g.Timeout <= 0 {
		return DefaultTimeout
	}
	return g.Timeout
}

// windowing devolve a janela e o relógio com que o ledger conta. Ledgers que
// não implementam domain.Windowed contam por dia de calendário em UTC.
func (g Gate) windowing() (domain.Window, domain.Clock) {
	if w, ok := g.Ledger.(domain.Windowed); ok && w.Clock() != nil {
		return w.Window(), w.Clock()
	}
	return domain.CalendarDay(), domain.SystemClock
}

// CheckAndRecord admite e grava content para id se o identificador ainda tem
// vaga na janela corrente; senão rejeita sem gravar.
// Rejeição não é erro: vem como Decision{Allowed: false}.
func (g Gate) CheckAndRecord(ctx context.Context, id domain.Key, content string) (domain.Decision, error) {
	if strings.TrimSpace(string(id)) == "" {
		return domain.Decision{}, fmt.Errorf("%w: empty identifier", domain.ErrInvalidInput)
	}
	if content == "" {
		return domain.Decision{}, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	if g.Ledger == nil {
		return domain.Decision{}, fmt.Errorf("%w: no ledger configured", domain.ErrStorageUnavailable)
	}

	limit := g.limit()
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	window, clock := g.windowing()

	var (
		dec domain.Decision
		err error
	)
	if capped, ok := g.Ledger.(domain.CappedLedger); ok {
		dec, err = g.appendWithin(ctx, capped, id, content, limit)
	} else {
		dec, err = g.atomically(ctx, id, content, limit)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsStorageUnavailable(err) {
			err = fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		return domain.Decision{}, err
	}
	if !dec.Allowed {
		dec.RetryAfter = window.ResetAfter(clock.Now())
	}

	g.record(ctx, id, dec, clock)
	return dec, nil
}

func (g Gate) appendWithin(ctx context.Context, ledger domain.CappedLedger, id domain.Key, content string, limit int) (domain.Decision, error) {
	adm, err := ledger.AppendWithin(ctx, id, content, limit)
	if err != nil {
		return domain.Decision{}, err
	}
	return domain.Decision{Allowed: adm.Admitted, RecordID: adm.RecordID, Used: adm.Used, Limit: limit}, nil
}

func (g Gate) atomically(ctx context.Context, id domain.Key, content string, limit int) (domain.Decision, error) {
	var dec domain.Decision
	err := g.Ledger.Atomically(ctx, id, func(ctx context.Context, tx domain.LedgerTx) error {
		// a closure pode ser refeita pelo ledger (retry otimista): dec é sempre sobrescrita.
		n, err := tx.CountToday(ctx, id)
		if err != nil {
			return err
		}
		if n >= limit {
			dec = domain.Decision{Allowed: false, Used: n, Limit: limit}
			return nil
		}
		rec, err := tx.Append(ctx, id, content)
		if err != nil {
			return err
		}
		dec = domain.Decision{Allowed: true, RecordID: rec, Used: n + 1, Limit: limit}
		return nil
	})
	return dec, err
}

func (g Gate) record(ctx context.Context, id domain.Key, dec domain.Decision, clock domain.Clock) {
	if g.Stats == nil {
		return
	}
	_ = g.Stats.Record(ctx, domain.StatsEvent{
		Key:     id,
		Allowed: dec.Allowed,
		Source:  "quota",
		At:      clock.Now(),
	})
}
