package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica o cliente (ex: IP de rede). É a chave de contabilização da cota.
type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pelo throttle de rajada na frente do gate (token bucket em memória).
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP).
type LimiterStore interface {
	Get(Key) Limiter
}

// RecordID identifica um registro aceito no ledger.
type RecordID string

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// Campos preenchidos apenas pelo gate de cota.
	RecordID RecordID
	Used     int
	Limit    int
}
