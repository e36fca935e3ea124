package infra

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"logquota/quota/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// newLedgerFunc cria um ledger novo ligado ao relógio informado.
type newLedgerFunc func(t *testing.T, clock domain.Clock) domain.Ledger

// runLedgerSuite roda o mesmo contrato contra qualquer implementação.
func runLedgerSuite(t *testing.T, newLedger newLedgerFunc) {
	// identificadores únicos: as implementações com backend real reaproveitam o banco.
	newID := func() domain.Key { return domain.Key("10.0.0." + uuid.NewString()) }
	noon := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	t.Run("UnknownIdentifierCountsZero", func(t *testing.T) {
		l := newLedger(t, domain.NewManualClock(noon))
		n, err := l.CountToday(context.Background(), newID())
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("AppendRejectsEmptyContent", func(t *testing.T) {
		l := newLedger(t, domain.NewManualClock(noon))
		_, err := l.Append(context.Background(), newID(), "")
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("AppendRejectsEmptyIdentifier", func(t *testing.T) {
		l := newLedger(t, domain.NewManualClock(noon))
		_, err := l.Append(context.Background(), "", "hello")
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("AppendThenCount", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, domain.NewManualClock(noon))
		id := newID()

		rec, err := l.Append(ctx, id, "first")
		require.NoError(t, err)
		require.NotEmpty(t, rec)

		_, err = l.Append(ctx, id, "second")
		require.NoError(t, err)

		n, err := l.CountToday(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("YesterdayDoesNotCount", func(t *testing.T) {
		ctx := context.Background()
		clock := domain.NewManualClock(time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC))
		l := newLedger(t, clock)
		id := newID()

		_, err := l.Append(ctx, id, "late night")
		require.NoError(t, err)

		clock.Advance(time.Hour)

		n, err := l.CountToday(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("FailedUnitWritesNothing", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, domain.NewManualClock(noon))
		id := newID()
		boom := errors.New("boom")

		err := l.Atomically(ctx, id, func(ctx context.Context, tx domain.LedgerTx) error {
			if _, err := tx.Append(ctx, id, "never"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		n, err := l.CountToday(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("UnitSeesOwnAppends", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t, domain.NewManualClock(noon))
		id := newID()

		err := l.Atomically(ctx, id, func(ctx context.Context, tx domain.LedgerTx) error {
			if _, err := tx.Append(ctx, id, "a"); err != nil {
				return err
			}
			n, err := tx.CountToday(ctx, id)
			if err != nil {
				return err
			}
			require.Equal(t, 1, n)
			return nil
		})
		require.NoError(t, err)
	})

	for _, limit := range []int{3, 10} {
		t.Run(fmt.Sprintf("ConcurrentUnitsAdmitExactlyLimit=%d", limit), func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t, domain.NewManualClock(noon))
			id := newID()
			const callers = 40

			var admitted atomic.Int32
			var g errgroup.Group
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					return l.Atomically(ctx, id, func(ctx context.Context, tx domain.LedgerTx) error {
						n, err := tx.CountToday(ctx, id)
						if err != nil || n >= limit {
							return err
						}
						if _, err := tx.Append(ctx, id, "burst"); err != nil {
							return err
						}
						admitted.Add(1)
						return nil
					})
				})
			}
			require.NoError(t, g.Wait())

			n, err := l.CountToday(ctx, id)
			require.NoError(t, err)
			require.Equal(t, limit, n)
			// com retry otimista a closure pode rodar de novo, mas só a última execução grava
			require.GreaterOrEqual(t, int(admitted.Load()), limit)
		})
	}

	t.Run("Ping", func(t *testing.T) {
		l := newLedger(t, domain.NewManualClock(noon))
		require.NoError(t, l.Ping(context.Background()))
	})
}
