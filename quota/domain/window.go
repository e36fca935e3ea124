package domain

import (
	"fmt"
	"strings"
	"time"
)

type WindowMode string

const (
	// WindowCalendar conta registros desde a meia-noite do dia corrente
	// (no fuso configurado).
	WindowCalendar WindowMode = "calendar"
	// WindowRolling conta registros nas últimas Size horas.
	WindowRolling WindowMode = "rolling"
)

// Window é a janela de cota. É recalculada a cada consulta; nenhum estado
// de janela é persistido.
type Window struct {
	Mode     WindowMode
	Size     time.Duration
	Location *time.Location
}

// CalendarDay é a janela padrão: dia de calendário em UTC.
func CalendarDay() Window {
	return Window{Mode: WindowCalendar, Size: 24 * time.Hour, Location: time.UTC}
}

func ParseWindowMode(s string) (WindowMode, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowCalendar:
		return WindowCalendar, nil
	case WindowRolling:
		return WindowRolling, nil
	}
	return "", fmt.Errorf("unknown quota window %q", s)
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func (w Window) size() time.Duration {
	if w.Size <= 0 {
		return 24 * time.Hour
	}
	return w.Size
}

// Start retorna o início da janela que contém now.
func (w Window) Start(now time.Time) time.Time {
	if w.Mode == WindowRolling {
		return now.Add(-w.size())
	}
	t := now.In(w.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc())
}

// ResetAfter retorna quanto falta para a janela liberar uma nova vaga.
// No modo rolling é uma estimativa pessimista (a janela inteira).
func (w Window) ResetAfter(now time.Time) time.Duration {
	if w.Mode == WindowRolling {
		return w.size()
	}
	start := w.Start(now)
	next := start.AddDate(0, 0, 1)
	return next.Sub(now)
}
