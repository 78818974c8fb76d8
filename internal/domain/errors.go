package domain

import "errors"

// Sentinel errors returned by the ledgers. Callers match with errors.Is;
// the web layer maps them to HTTP status codes.
var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidEfficiency  = errors.New("invalid efficiency percentage")
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrOverFill           = errors.New("fill exceeds order quantity")
	ErrTerminalOrder      = errors.New("order is in a terminal state")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrInvariantViolation = errors.New("conservation invariant violated")
	ErrConflict           = errors.New("record locked by concurrent operation")
	ErrNotFound           = errors.New("record not found")
)
