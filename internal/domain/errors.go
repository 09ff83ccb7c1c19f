package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnknownTier       = errors.New("unknown strategy tier")
	ErrInvalidTrade      = errors.New("invalid trade parameters")
	ErrSourceUnavailable = errors.New("data source unavailable")
	ErrQuoteUnavailable  = errors.New("quote unavailable")
	ErrTxReverted        = errors.New("transaction reverted")
	ErrDuplicateTrade    = errors.New("duplicate trade intent")
	ErrContextDone       = errors.New("context cancelled")
	ErrLockHeld          = errors.New("lock already held")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidInput      = errors.New("invalid input")
)
