// Package domain define contratos e tipos de domínio da cota diária de registros.
//
// Este pacote não depende de net/http nem de implementações concretas de storage.
// Aqui ficam o contrato do ledger (Ledger/LedgerTx), a janela de cota (Window),
// o relógio injetável (Clock), a decisão (Decision) e a taxonomia de erros.
package domain
