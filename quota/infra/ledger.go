package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"logquota/quota/domain"
)

// ledgerConfig é compartilhado pelas implementações de ledger.
type ledgerConfig struct {
	clock  domain.Clock
	window domain.Window
}

type LedgerOption func(*ledgerConfig)

// WithClock troca o relógio que carimba recorded_at e calcula a janela.
func WithClock(c domain.Clock) LedgerOption {
	return func(cfg *ledgerConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

func WithWindow(w domain.Window) LedgerOption {
	return func(cfg *ledgerConfig) { cfg.window = w }
}

func newLedgerConfig(opts []LedgerOption) ledgerConfig {
	cfg := ledgerConfig{
		clock:  domain.SystemClock,
		window: domain.CalendarDay(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c ledgerConfig) windowStart() time.Time {
	return c.window.Start(c.clock.Now())
}

func validateSubmission(id domain.Key, content string) error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: empty identifier", domain.ErrInvalidInput)
	}
	if content == "" {
		return fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	return nil
}

// storageErr converte erros do backend em ErrStorageUnavailable.
// Erros que já são do domínio passam intactos.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStorageUnavailable) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}
