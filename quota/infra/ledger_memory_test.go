package infra

import (
	"context"
	"testing"
	"time"

	"logquota/quota/domain"

	"github.com/stretchr/testify/require"
)

func TestMemoryLedger(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T, clock domain.Clock) domain.Ledger {
		return NewMemoryLedger(WithClock(clock))
	})
}

func TestMemoryLedger_LockHonoursContextDeadline(t *testing.T) {
	l := NewMemoryLedger()
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = l.Atomically(context.Background(), "k", func(context.Context, domain.LedgerTx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Atomically(ctx, "k", func(context.Context, domain.LedgerTx) error {
		t.Fatalf("should not run while the identifier is locked")
		return nil
	})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	close(hold)
}

func TestMemoryLedger_OtherIdentifierNotBlocked(t *testing.T) {
	l := NewMemoryLedger()
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = l.Atomically(context.Background(), "a", func(context.Context, domain.LedgerTx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.Atomically(ctx, "b", func(ctx context.Context, tx domain.LedgerTx) error {
		_, err := tx.Append(ctx, "b", "hi")
		return err
	})
	require.NoError(t, err)
	require.Len(t, l.Submissions("b"), 1)
}

func TestMemoryLedger_TxBoundToIdentifier(t *testing.T) {
	l := NewMemoryLedger()
	err := l.Atomically(context.Background(), "a", func(ctx context.Context, tx domain.LedgerTx) error {
		_, err := tx.Append(ctx, "b", "x")
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Empty(t, l.Submissions("b"))
}

func TestMemoryLedger_RecordsCarryLedgerTimestamp(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewMemoryLedger(WithClock(domain.NewManualClock(at)))

	_, err := l.Append(context.Background(), "1.2.3.4", "hello")
	require.NoError(t, err)

	subs := l.Submissions("1.2.3.4")
	require.Len(t, subs, 1)
	require.Equal(t, at, subs[0].RecordedAt)
	require.Equal(t, "hello", subs[0].Content)
}

func TestKeyLocks_FreesIdleEntries(t *testing.T) {
	k := newKeyLocks()
	release, ok := k.Lock(context.Background(), "x")
	require.True(t, ok)
	require.Equal(t, 1, k.size())

	release()
	release() // idempotente
	require.Equal(t, 0, k.size())
}
