package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient credit balance")
	ErrInvalidAmount     = errors.New("transaction amount must be positive")
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrAccountNotFound   = errors.New("credit account not found")

	// ErrDuplicateExternalRef is returned when a transaction with the same
	// (user, external payment ref, kind) has already been recorded. The
	// webhook layer treats it as successful duplicate suppression.
	ErrDuplicateExternalRef = errors.New("transaction with this external payment reference already recorded")

	ErrFailedToApplyTransaction = errors.New("failed to apply ledger transaction")
)
