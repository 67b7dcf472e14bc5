package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrTerminalState is returned when a batch row already reached
	// COMPLETED or FAILED. Terminal rows never change again.
	ErrTerminalState = errors.New("batch item already in a terminal state")
)
