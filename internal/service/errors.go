package service

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP statuses at the handler boundary.
var (
	// ErrBudgetNotFound means the ERP has no budget record for the lookup.
	// Callers must render this as "unavailable", never as a zero budget.
	ErrBudgetNotFound = errors.New("budget not found")

	// ErrForbidden means the permission oracle denied the caller.
	ErrForbidden = errors.New("budget view not permitted")

	// ErrERPUnavailable wraps ERP transport failures, distinguishable from
	// not-found. Surfaced generically; retry is user-initiated only.
	ErrERPUnavailable = errors.New("erp unavailable")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
