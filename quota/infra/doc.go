// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryLedger / PostgresLedger / RedisLedger: ledger de registros com unidade
//     atômica serializada por identificador
//   - LogsSchema: declaração explícita e versionada da tabela logs
//   - ThrottleStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples (limite de concorrência e lock por identificador)
//   - stats: memória, Redis e Prometheus
package infra
