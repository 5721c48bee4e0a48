package domain

import "errors"

var (
	// ErrInvalidInput is returned when no usable observations remain after
	// cleaning or none of them resolves to a known tower.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnableToCompute is returned when every positioning fallback is exhausted.
	ErrUnableToCompute = errors.New("unable to compute location")
)
