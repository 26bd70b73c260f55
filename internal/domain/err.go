package domain

import "errors"

var (
	ErrWithdrawalNotFound       = errors.New("withdrawal not found")
	ErrAccountNotFound          = errors.New("account not found")
	ErrKeyDetailNotFound        = errors.New("key detail not found")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrFailureReasonRequired    = errors.New("failure reason is required")
	ErrDuplicateTransactionID   = errors.New("duplicate transaction id")
	ErrTransactionIDExhausted   = errors.New("unable to generate a unique transaction id")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrQueueUnavailable         = errors.New("job queue unavailable")
	ErrUnknownJobKind           = errors.New("unknown job kind")
	ErrNotificationNotDelivered = errors.New("notification not delivered")
)
