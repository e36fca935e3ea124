package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"logquota/quota/domain"
	"logquota/quota/infra"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestGate(limit int, clock domain.Clock) (Gate, *infra.MemoryLedger) {
	ledger := infra.NewMemoryLedger(infra.WithClock(clock))
	return Gate{Ledger: ledger, Limit: limit}, ledger
}

func TestGate_AdmitsUpToLimitThenRejects(t *testing.T) {
	clock := domain.NewManualClock(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	g, ledger := newTestGate(3, clock)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		dec, err := g.CheckAndRecord(ctx, "1.2.3.4", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		require.True(t, dec.Allowed, "submission %d should be admitted", i)
		require.NotEmpty(t, dec.RecordID)
		require.Equal(t, i, dec.Used)
		require.Equal(t, 3, dec.Limit)
	}

	dec, err := g.CheckAndRecord(ctx, "1.2.3.4", "message 4")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	require.Empty(t, dec.RecordID)
	require.Equal(t, 6*time.Hour, dec.RetryAfter)
	require.Len(t, ledger.Submissions("1.2.3.4"), 3)
}

func TestGate_DefaultLimitIsThree(t *testing.T) {
	g, _ := newTestGate(0, domain.SystemClock)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dec, err := g.CheckAndRecord(ctx, "k", "m")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}
	dec, err := g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
}

func TestGate_ConcurrentBurstAdmitsExactlyLimit(t *testing.T) {
	g, ledger := newTestGate(3, domain.SystemClock)
	ctx := context.Background()
	const callers = 50

	var mu sync.Mutex
	admitted, rejected := 0, 0

	var eg errgroup.Group
	for i := 0; i < callers; i++ {
		eg.Go(func() error {
			dec, err := g.CheckAndRecord(ctx, "1.2.3.4", "burst")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if dec.Allowed {
				admitted++
			} else {
				rejected++
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Equal(t, 3, admitted)
	require.Equal(t, callers-3, rejected)
	require.Len(t, ledger.Submissions("1.2.3.4"), 3)
}

func TestGate_IdentifiersAreIndependent(t *testing.T) {
	g, _ := newTestGate(1, domain.SystemClock)
	ctx := context.Background()

	dec, err := g.CheckAndRecord(ctx, "A", "m")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = g.CheckAndRecord(ctx, "A", "m")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	dec, err = g.CheckAndRecord(ctx, "B", "m")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
}

func TestGate_NewDayResetsQuota(t *testing.T) {
	clock := domain.NewManualClock(time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC))
	g, _ := newTestGate(2, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := g.CheckAndRecord(ctx, "k", "m")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}
	dec, err := g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	clock.Advance(3 * time.Hour)

	dec, err = g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	require.Equal(t, 1, dec.Used)
}

func TestGate_InvalidInputConsumesNothing(t *testing.T) {
	g, ledger := newTestGate(3, domain.SystemClock)
	ctx := context.Background()

	_, err := g.CheckAndRecord(ctx, "1.2.3.4", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = g.CheckAndRecord(ctx, " ", "hello")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	require.Empty(t, ledger.Submissions("1.2.3.4"))
}

type failingLedger struct {
	domain.Ledger
	err error
}

func (f failingLedger) Atomically(context.Context, domain.Key, func(context.Context, domain.LedgerTx) error) error {
	return f.err
}

func TestGate_LedgerErrorPropagatesUnchanged(t *testing.T) {
	cause := fmt.Errorf("%w: connection refused", domain.ErrStorageUnavailable)
	g := Gate{Ledger: failingLedger{err: cause}}

	_, err := g.CheckAndRecord(context.Background(), "k", "m")
	require.Same(t, cause, err)
	require.True(t, domain.IsStorageUnavailable(err))
}

type hangingLedger struct{ domain.Ledger }

func (hangingLedger) Atomically(ctx context.Context, _ domain.Key, _ func(context.Context, domain.LedgerTx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGate_HungBackendTimesOutAsStorageUnavailable(t *testing.T) {
	g := Gate{Ledger: hangingLedger{}, Timeout: 20 * time.Millisecond}

	start := time.Now()
	_, err := g.CheckAndRecord(context.Background(), "k", "m")
	require.True(t, domain.IsStorageUnavailable(err), "got %v", err)
	require.True(t, errors.Is(err, domain.ErrStorageUnavailable))
	require.Less(t, time.Since(start), time.Second)
}

func TestGate_NoLedgerIsStorageUnavailable(t *testing.T) {
	_, err := Gate{}.CheckAndRecord(context.Background(), "k", "m")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestGate_RecordsStats(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	g, _ := newTestGate(1, domain.SystemClock)
	g.Stats = stats
	ctx := context.Background()

	_, _ = g.CheckAndRecord(ctx, "k", "m")
	_, _ = g.CheckAndRecord(ctx, "k", "m")
	_, _ = g.CheckAndRecord(ctx, "k", "")

	require.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.BySource()["quota"])
}

func TestGate_RetryAfterFollowsLedgerWindow(t *testing.T) {
	clock := domain.NewManualClock(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	rolling := domain.Window{Mode: domain.WindowRolling, Size: 2 * time.Hour}
	ledger := infra.NewMemoryLedger(infra.WithClock(clock), infra.WithWindow(rolling))
	g := Gate{Ledger: ledger, Limit: 1}
	ctx := context.Background()

	dec, err := g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	require.Equal(t, 2*time.Hour, dec.RetryAfter)
}

// cappedLedger só implementa AppendWithin; Atomically no Ledger nil embutido entraria em pânico.
type cappedLedger struct {
	domain.Ledger
	calls int
	used  int
}

func (c *cappedLedger) AppendWithin(_ context.Context, _ domain.Key, _ string, limit int) (domain.Admission, error) {
	c.calls++
	if c.used >= limit {
		return domain.Admission{Used: c.used}, nil
	}
	c.used++
	return domain.Admission{Admitted: true, RecordID: "rec", Used: c.used}, nil
}

func TestGate_PrefersCappedAppend(t *testing.T) {
	ledger := &cappedLedger{}
	g := Gate{Ledger: ledger, Limit: 2}
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		dec, err := g.CheckAndRecord(ctx, "k", "m")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
		require.Equal(t, domain.RecordID("rec"), dec.RecordID)
		require.Equal(t, i, dec.Used)
	}

	dec, err := g.CheckAndRecord(ctx, "k", "m")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	require.Equal(t, 2, dec.Used)
	require.Positive(t, dec.RetryAfter)
	require.Equal(t, 3, ledger.calls)
}
