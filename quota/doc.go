// Package quota expõe o serviço de registros com cota diária por cliente sobre net/http.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (ledger, janela, decisão, erros)
//   - application: casos de uso (Gate atômico, throttle, concorrência) sem net/http
//   - infra: ledgers (memória, Postgres, Redis), schema, token bucket, stats
//   - quota (este pacote): handler POST /log, extração do identificador,
//     middlewares e tradução de decisões/erros para status HTTP
//
// Fluxo de um POST /log:
//
//  1. Extrai o identificador do cliente (primeiro X-Forwarded-For ou RemoteAddr)
//  2. (opcional) Throttle de rajada: 429 imediato sem tocar no storage
//  3. Gate.CheckAndRecord conta e grava na mesma unidade atômica
//  4. 200 admitido, 429 cota esgotada, 400 entrada inválida, 500 falha de storage
//
// Variáveis de ambiente do binário (cmd/logquota) controlam o comportamento,
// como QUOTA_LIMIT, QUOTA_WINDOW, STORAGE_BACKEND e TRUST_XFF.
package quota
