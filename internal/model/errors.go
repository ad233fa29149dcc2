package model

import "errors"

// Failure classes. None of them escapes a tracking operation; they exist
// so callers can log and test with errors.Is.
var (
	ErrStorageUnavailable  = errors.New("ledger storage unavailable")
	ErrMalformedCheckpoint = errors.New("no usage marker in checkpoint text")
	ErrInvalidInteraction  = errors.New("invalid interaction input")
	ErrNoOpenSession       = errors.New("no open session")
)
