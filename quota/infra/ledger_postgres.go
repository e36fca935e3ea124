package infra

import (
	"context"
	"fmt"
	"time"

	"logquota/quota/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	countSinceSQL = `SELECT count(*) FROM logs WHERE identifier = $1 AND recorded_at >= $2`
	insertLogSQL  = `INSERT INTO logs (id, identifier, content, recorded_at) VALUES ($1, $2, $3, $4)`

	// Lock de transação: liberado no commit/rollback. Colisão de hash entre
	// identificadores só serializa mais do que o necessário.
	lockIdentifierSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
)

// pgQuerier é o que *pgxpool.Pool e pgx.Tx têm em comum para o ledger.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLedger grava registros na tabela logs (ver LogsSchema).
//
// recorded_at é carimbado pelo relógio do ledger e não pelo relógio do banco,
// para que contagem e inserção usem a mesma noção de "hoje".
type PostgresLedger struct {
	pool  *pgxpool.Pool
	cfg   ledgerConfig
	locks *keyLocks
}

func NewPostgresLedger(pool *pgxpool.Pool, opts ...LedgerOption) *PostgresLedger {
	return &PostgresLedger{pool: pool, cfg: newLedgerConfig(opts), locks: newKeyLocks()}
}

func (l *PostgresLedger) CountToday(ctx context.Context, id domain.Key) (int, error) {
	return l.count(ctx, l.pool, id)
}

func (l *PostgresLedger) Append(ctx context.Context, id domain.Key, content string) (domain.RecordID, error) {
	return l.insert(ctx, l.pool, id, content)
}

// Atomically serializa as unidades do identificador em dois níveis: o lock
// local é pego antes de tirar uma conexão do pool, então uma rajada de um só
// identificador ocupa no máximo uma conexão por processo; dentro da transação
// READ COMMITTED o advisory lock serializa contra outros processos.
func (l *PostgresLedger) Atomically(ctx context.Context, id domain.Key, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	release, ok := l.locks.Lock(ctx, id)
	if !ok {
		return storageErr("lock "+string(id), ctx.Err())
	}
	defer release()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockIdentifierSQL, string(id)); err != nil {
		return storageErr("lock "+string(id), err)
	}
	if err := fn(ctx, &postgresTx{l: l, tx: tx, id: id}); err != nil {
		return err
	}
	return storageErr("commit", tx.Commit(ctx))
}

func (l *PostgresLedger) Window() domain.Window { return l.cfg.window }

func (l *PostgresLedger) Clock() domain.Clock { return l.cfg.clock }

func (l *PostgresLedger) Ping(ctx context.Context) error {
	return storageErr("ping", l.pool.Ping(ctx))
}

func (l *PostgresLedger) count(ctx context.Context, q pgQuerier, id domain.Key) (int, error) {
	var n int64
	if err := q.QueryRow(ctx, countSinceSQL, string(id), l.cfg.windowStart()).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return int(n), nil
}

func (l *PostgresLedger) insert(ctx context.Context, q pgQuerier, id domain.Key, content string) (domain.RecordID, error) {
	if err := validateSubmission(id, content); err != nil {
		return "", err
	}
	recID := uuid.New()
	at := l.cfg.clock.Now().Truncate(time.Microsecond)
	if _, err := q.Exec(ctx, insertLogSQL, recID, string(id), content, at); err != nil {
		return "", storageErr("insert", err)
	}
	return domain.RecordID(recID.String()), nil
}

type postgresTx struct {
	l  *PostgresLedger
	tx pgx.Tx
	id domain.Key
}

func (t *postgresTx) CountToday(ctx context.Context, id domain.Key) (int, error) {
	if id != t.id {
		return 0, fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, t.id, id)
	}
	return t.l.count(ctx, t.tx, id)
}

func (t *postgresTx) Append(ctx context.Context, id domain.Key, content string) (domain.RecordID, error) {
	if id != t.id {
		return "", fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, t.id, id)
	}
	return t.l.insert(ctx, t.tx, id, content)
}
