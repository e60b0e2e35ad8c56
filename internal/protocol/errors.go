package protocol

import (
	"context"
	"errors"
	"fmt"
)

const (
	// Lookup.
	ErrNotFound = "E_NOT_FOUND"

	// Ownership and upgrade rules.
	ErrAlreadyOwned      = "E_ALREADY_OWNED"
	ErrNotOwned          = "E_NOT_OWNED"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrAlreadyMaxed      = "E_ALREADY_MAXED"
	ErrPrerequisiteUnmet = "E_PREREQUISITE_UNMET"
	ErrInvalidArgument   = "E_INVALID_ARGUMENT"

	// World availability.
	ErrBusy      = "E_BUSY"
	ErrRateLimit = "E_RATE_LIMIT"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrNotFound:          {},
	ErrAlreadyOwned:      {},
	ErrNotOwned:          {},
	ErrInsufficientFunds: {},
	ErrAlreadyMaxed:      {},
	ErrPrerequisiteUnmet: {},
	ErrInvalidArgument:   {},
	ErrBusy:              {},
	ErrRateLimit:         {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is a rule or availability failure reported back to the caller.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func Errorf(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err. Context expiry maps to ErrBusy and
// anything else unrecognized to ErrInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrBusy
	}
	return ErrInternal
}
