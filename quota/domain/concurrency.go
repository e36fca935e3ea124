package domain

import "context"

// SlotPool é um semáforo com capacidade finita. Serve tanto para o teto de
// requests simultâneos no POST /log quanto para o lock de capacidade 1 por
// identificador no ledger em memória.
//
// Acquire bloqueia até ter vaga ou até o ctx encerrar. O release devolvido
// deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
