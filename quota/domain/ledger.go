package domain

import (
	"context"
	"time"
)

// Submission é um registro aceito. Nunca é alterado nem removido.
type Submission struct {
	ID         RecordID
	Identifier Key
	Content    string
	RecordedAt time.Time
}

// LedgerTx são as primitivas do ledger visíveis dentro de uma unidade atômica.
type LedgerTx interface {
	// CountToday retorna quantos registros do identificador caem na janela
	// corrente. Identificador desconhecido retorna 0.
	CountToday(ctx context.Context, id Key) (int, error)
	// Append grava um novo registro com recorded_at = agora (relógio do ledger).
	Append(ctx context.Context, id Key, content string) (RecordID, error)
}

// Ledger é o armazenamento durável de registros.
//
// O ledger não aplica a cota; só fornece primitivas. Atomically serializa fn
// contra qualquer outra unidade do mesmo identificador, sem bloquear
// identificadores diferentes. Se fn retorna erro, nada do que fn gravou persiste.
type Ledger interface {
	LedgerTx
	Atomically(ctx context.Context, id Key, fn func(ctx context.Context, tx LedgerTx) error) error
	Ping(ctx context.Context) error
}

// Admission é o resultado de CappedLedger.AppendWithin.
type Admission struct {
	Admitted bool
	RecordID RecordID
	// Used conta registros na janela, incluindo o recém gravado quando Admitted.
	Used int
}

// CappedLedger é implementado por backends que fazem contar-comparar-gravar
// numa única operação do servidor (ex: script Lua no Redis). Quando o ledger
// implementa esta interface o gate usa AppendWithin no lugar de Atomically.
type CappedLedger interface {
	AppendWithin(ctx context.Context, id Key, content string, limit int) (Admission, error)
}

// Windowed expõe a janela e o relógio com que o ledger conta registros.
// O gate usa os mesmos valores para calcular o RetryAfter.
type Windowed interface {
	Window() Window
	Clock() Clock
}
