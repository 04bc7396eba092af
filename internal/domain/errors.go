package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrLedgerConflict       = errors.New("ledger conflict")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrGatewayRejected    = errors.New("gateway rejected")
	ErrSecurityMismatch   = errors.New("security mismatch")

	ErrEventNotPublished = errors.New("event not published")
	ErrEventFree         = errors.New("event is free")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyProcessed    = errors.New("already processed")
)
