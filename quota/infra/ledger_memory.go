package infra

import (
	"context"
	"fmt"
	"sync"

	"logquota/quota/domain"

	"github.com/google/uuid"
)

// MemoryLedger guarda os registros em memória.
// Útil para testes e desenvolvimento (STORAGE_BACKEND=memory).
//
// Não é durável: os registros somem quando o processo termina.
type MemoryLedger struct {
	cfg   ledgerConfig
	locks *keyLocks

	mu      sync.RWMutex
	records map[domain.Key][]domain.Submission
}

func NewMemoryLedger(opts ...LedgerOption) *MemoryLedger {
	return &MemoryLedger{
		cfg:     newLedgerConfig(opts),
		locks:   newKeyLocks(),
		records: make(map[domain.Key][]domain.Submission),
	}
}

func (l *MemoryLedger) Window() domain.Window { return l.cfg.window }

func (l *MemoryLedger) Clock() domain.Clock { return l.cfg.clock }

func (l *MemoryLedger) CountToday(_ context.Context, id domain.Key) (int, error) {
	return l.countSince(id, nil), nil
}

func (l *MemoryLedger) Append(_ context.Context, id domain.Key, content string) (domain.RecordID, error) {
	sub, err := l.newSubmission(id, content)
	if err != nil {
		return "", err
	}
	l.commit([]domain.Submission{sub})
	return sub.ID, nil
}

// Atomically segura o lock do identificador durante fn. As gravações de fn
// ficam pendentes e só entram no mapa se fn terminar sem erro.
func (l *MemoryLedger) Atomically(ctx context.Context, id domain.Key, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	release, ok := l.locks.Lock(ctx, id)
	if !ok {
		return storageErr("lock "+string(id), ctx.Err())
	}
	defer release()

	tx := &memoryTx{l: l, id: id}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	l.commit(tx.pending)
	return nil
}

func (l *MemoryLedger) Ping(context.Context) error { return nil }

// Submissions devolve uma cópia dos registros do identificador.
func (l *MemoryLedger) Submissions(id domain.Key) []domain.Submission {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Submission, len(l.records[id]))
	copy(out, l.records[id])
	return out
}

func (l *MemoryLedger) newSubmission(id domain.Key, content string) (domain.Submission, error) {
	if err := validateSubmission(id, content); err != nil {
		return domain.Submission{}, err
	}
	return domain.Submission{
		ID:         domain.RecordID(uuid.NewString()),
		Identifier: id,
		Content:    content,
		RecordedAt: l.cfg.clock.Now(),
	}, nil
}

func (l *MemoryLedger) countSince(id domain.Key, pending []domain.Submission) int {
	start := l.cfg.windowStart()

	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, s := range l.records[id] {
		if !s.RecordedAt.Before(start) {
			n++
		}
	}
	for _, s := range pending {
		if s.Identifier == id && !s.RecordedAt.Before(start) {
			n++
		}
	}
	return n
}

func (l *MemoryLedger) commit(subs []domain.Submission) {
	if len(subs) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range subs {
		l.records[s.Identifier] = append(l.records[s.Identifier], s)
	}
}

type memoryTx struct {
	l       *MemoryLedger
	id      domain.Key
	pending []domain.Submission
}

func (tx *memoryTx) CountToday(_ context.Context, id domain.Key) (int, error) {
	if id != tx.id {
		return 0, fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, tx.id, id)
	}
	return tx.l.countSince(id, tx.pending), nil
}

func (tx *memoryTx) Append(_ context.Context, id domain.Key, content string) (domain.RecordID, error) {
	if id != tx.id {
		return "", fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, tx.id, id)
	}
	sub, err := tx.l.newSubmission(id, content)
	if err != nil {
		return "", err
	}
	tx.pending = append(tx.pending, sub)
	return sub.ID, nil
}
