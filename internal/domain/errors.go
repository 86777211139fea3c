package domain

import "errors"

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")
	ErrIdempotencyRequired  = errors.New("idempotency key required")
	ErrIdempotencyConflict  = errors.New("idempotency conflict")
	ErrUnsupportedEventType = errors.New("unsupported event type")
	ErrInvalidTransition    = errors.New("invalid status transition")

	ErrInsufficientStake   = errors.New("insufficient stake")
	ErrLockPeriodActive    = errors.New("lock period active")
	ErrUnknownSlashKind    = errors.New("unknown slash condition")
	ErrEvidenceThreshold   = errors.New("evidence threshold not met")
	ErrArbitrationRequired = errors.New("arbitration required")
	ErrPaymentMismatch     = errors.New("payment proof mismatch")
	ErrPaymentExpired      = errors.New("payment expired")
	ErrDealNotFound        = errors.New("escrow deal not found")
	ErrChannelExists       = errors.New("payment channel already exists")
	ErrChannelNotFound     = errors.New("payment channel not found")
	ErrBudgetExceeded      = errors.New("budget exceeded")
	ErrExternalService     = errors.New("external service failure")
)
