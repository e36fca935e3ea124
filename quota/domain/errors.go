package domain

import "errors"

var (
	// ErrInvalidInput indica identificador ou conteúdo vazio.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable indica backend inacessível, transação abortada
	// ou timeout na unidade atômica.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
