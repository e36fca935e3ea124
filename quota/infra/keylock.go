package infra

import (
	"context"
	"sync"

	"logquota/quota/domain"
)

// keyLocks mantém um semáforo de capacidade 1 por chave.
// Entradas são contadas por referência e removidas quando ninguém mais usa,
// então identificadores ociosos não acumulam memória.
type keyLocks struct {
	mu      sync.Mutex
	entries map[domain.Key]*keyLockEntry
}

type keyLockEntry struct {
	pool domain.SlotPool
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[domain.Key]*keyLockEntry)}
}

// Lock bloqueia até obter a vaga da chave ou até o ctx encerrar.
func (k *keyLocks) Lock(ctx context.Context, key domain.Key) (func(), bool) {
	k.mu.Lock()
	ent, ok := k.entries[key]
	if !ok {
		ent = &keyLockEntry{pool: NewChanPool(1)}
		k.entries[key] = ent
	}
	ent.refs++
	k.mu.Unlock()

	release, ok := ent.pool.Acquire(ctx)
	if !ok {
		k.unref(key, ent)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			k.unref(key, ent)
		})
	}, true
}

func (k *keyLocks) unref(key domain.Key, ent *keyLockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ent.refs--
	if ent.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
