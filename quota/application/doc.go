// Package application contém os casos de uso do serviço de registros com cota.
//
// Ele depende apenas do pacote domain e não conhece net/http.
//   - Gate.CheckAndRecord: decisão atômica admitir/rejeitar + gravação no ledger
//   - Throttle.Decide: corte de rajadas por cliente antes do gate
//   - ConcurrencyService.Acquire: limite de requests simultâneos
package application
