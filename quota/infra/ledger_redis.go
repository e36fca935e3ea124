package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"logquota/quota/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLedger guarda, por identificador, um sorted set (score = recorded_at em ms,
// membro = id do registro) e um hash id -> conteúdo.
//
// A durabilidade depende da persistência configurada no Redis (AOF).
//
// AppendWithin é o caminho do gate: um script Lua conta, compara com o limite
// e grava sem round-trip intermediário, então não existe conflito a refazer.
// Atomically continua disponível para unidades genéricas: lock local por
// identificador e, entre processos, WATCH/MULTI otimista refeito até o ctx encerrar.
type RedisLedger struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
	cfg        ledgerConfig
	locks      *keyLocks
}

// appendWithinScript: KEYS = {logs, content};
// ARGV = {since_ms, limit, recorded_at_ms, record_id, content}.
// Retorna {admitido (0|1), usados}.
var appendWithinScript = redis.NewScript(`
local n = redis.call('ZCOUNT', KEYS[1], ARGV[1], '+inf')
if n >= tonumber(ARGV[2]) then
	return {0, n}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('HSET', KEYS[2], ARGV[4], ARGV[5])
return {1, n + 1}
`)

type RedisLedgerOption func(*RedisLedger)

func WithLedgerPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) {
		if p := strings.Trim(prefix, ":"); p != "" {
			l.prefix = p
		}
	}
}

// WithMaxRetries limita as tentativas de Atomically quando há conflito entre
// processos. Sem limite (padrão) as tentativas só param com o ctx.
func WithMaxRetries(n int) RedisLedgerOption {
	return func(l *RedisLedger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func NewRedisLedger(rdb redis.UniversalClient, opts []RedisLedgerOption, ledgerOpts ...LedgerOption) *RedisLedger {
	l := &RedisLedger{
		rdb:        rdb,
		prefix: "logquota",
		cfg:    newLedgerConfig(ledgerOpts),
		locks:  newKeyLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// As chaves usam hash tag {identifier} para caírem no mesmo slot em Redis Cluster.
func (l *RedisLedger) logsKey(id domain.Key) string {
	return fmt.Sprintf("%s:{%s}:logs", l.prefix, id)
}

func (l *RedisLedger) contentKey(id domain.Key) string {
	return fmt.Sprintf("%s:{%s}:content", l.prefix, id)
}

func (l *RedisLedger) CountToday(ctx context.Context, id domain.Key) (int, error) {
	return l.count(ctx, l.rdb, id)
}

func (l *RedisLedger) Append(ctx context.Context, id domain.Key, content string) (domain.RecordID, error) {
	sub, err := l.newSubmission(id, content)
	if err != nil {
		return "", err
	}
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		l.queue(ctx, p, sub)
		return nil
	})
	if err != nil {
		return "", storageErr("append", err)
	}
	return sub.ID, nil
}

func (l *RedisLedger) Atomically(ctx context.Context, id domain.Key, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	release, ok := l.locks.Lock(ctx, id)
	if !ok {
		return storageErr("lock "+string(id), ctx.Err())
	}
	defer release()

	key := l.logsKey(id)
	for attempt := 1; l.maxRetries <= 0 || attempt <= l.maxRetries; attempt++ {
		err := l.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{l: l, rtx: rtx, id: id}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.pending) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for _, sub := range tx.pending {
					l.queue(ctx, p, sub)
				}
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return storageErr("atomic unit", err)
		}
		if ctx.Err() != nil {
			return storageErr("atomic unit", ctx.Err())
		}
	}
	return fmt.Errorf("%w: %d conflicting attempts for %q", domain.ErrStorageUnavailable, l.maxRetries, id)
}

// AppendWithin grava content só se id tiver menos de limit registros na janela.
func (l *RedisLedger) AppendWithin(ctx context.Context, id domain.Key, content string, limit int) (domain.Admission, error) {
	if limit <= 0 {
		return domain.Admission{}, fmt.Errorf("%w: limit must be > 0", domain.ErrInvalidInput)
	}
	sub, err := l.newSubmission(id, content)
	if err != nil {
		return domain.Admission{}, err
	}

	resp := appendWithinScript.Run(ctx, l.rdb,
		[]string{l.logsKey(id), l.contentKey(id)},
		l.cfg.windowStart().UnixMilli(),
		limit,
		sub.RecordedAt.UnixMilli(),
		string(sub.ID),
		sub.Content,
	)
	result, err := resp.Result()
	if err != nil {
		return domain.Admission{}, storageErr("append within", err)
	}
	vals, ok := result.([]interface{})
	if !ok || len(vals) != 2 {
		return domain.Admission{}, fmt.Errorf("%w: append within: unexpected reply %v", domain.ErrStorageUnavailable, result)
	}
	admitted, ok1 := vals[0].(int64)
	used, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return domain.Admission{}, fmt.Errorf("%w: append within: unexpected reply %v", domain.ErrStorageUnavailable, result)
	}

	adm := domain.Admission{Admitted: admitted == 1, Used: int(used)}
	if adm.Admitted {
		adm.RecordID = sub.ID
	}
	return adm, nil
}

func (l *RedisLedger) Window() domain.Window { return l.cfg.window }

func (l *RedisLedger) Clock() domain.Clock { return l.cfg.clock }

func (l *RedisLedger) Ping(ctx context.Context) error {
	return storageErr("ping", l.rdb.Ping(ctx).Err())
}

func (l *RedisLedger) count(ctx context.Context, c zCounter, id domain.Key) (int, error) {
	since := strconv.FormatInt(l.cfg.windowStart().UnixMilli(), 10)
	n, err := c.ZCount(ctx, l.logsKey(id), since, "+inf").Result()
	if err != nil {
		return 0, storageErr("count", err)
	}
	return int(n), nil
}

func (l *RedisLedger) newSubmission(id domain.Key, content string) (domain.Submission, error) {
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

func (l *RedisLedger) queue(ctx context.Context, p redis.Pipeliner, sub domain.Submission) {
	p.ZAdd(ctx, l.logsKey(sub.Identifier), redis.Z{
		Score:  float64(sub.RecordedAt.UnixMilli()),
		Member: string(sub.ID),
	})
	p.HSet(ctx, l.contentKey(sub.Identifier), string(sub.ID), sub.Content)
}

// zCounter é o que o cliente e o *redis.Tx têm em comum para contar.
type zCounter interface {
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
}

type redisTx struct {
	l       *RedisLedger
	rtx     *redis.Tx
	id      domain.Key
	pending []domain.Submission
}

// CountToday lê dentro do WATCH e soma o que esta unidade já enfileirou.
func (t *redisTx) CountToday(ctx context.Context, id domain.Key) (int, error) {
	if id != t.id {
		return 0, fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, t.id, id)
	}
	n, err := t.l.count(ctx, t.rtx, id)
	if err != nil {
		return 0, err
	}
	return n + len(t.pending), nil
}

func (t *redisTx) Append(_ context.Context, id domain.Key, content string) (domain.RecordID, error) {
	if id != t.id {
		return "", fmt.Errorf("%w: unit bound to %q, got %q", domain.ErrInvalidInput, t.id, id)
	}
	sub, err := t.l.newSubmission(id, content)
	if err != nil {
		return "", err
	}
	t.pending = append(t.pending, sub)
	return sub.ID, nil
}
