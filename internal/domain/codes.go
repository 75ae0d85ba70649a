package domain

import "errors"

// Stable wire codes for the sentinel errors. The HTTP API writes them and the
// HTTP client maps them back, so errors.Is works on both ends.
const (
	CodeInvalidTransition     = "invalid_transition"
	CodeInsufficientInventory = "insufficient_inventory"
	CodeExpired               = "expired"
	CodeUnreachable           = "unreachable"
	CodeNotFound              = "not_found"
	CodeForbidden             = "forbidden"
	CodeValidation            = "validation"
	CodeMutationInFlight      = "mutation_in_flight"
	CodeNotEligible           = "not_eligible"
	CodeInternal              = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrInsufficientInventory, CodeInsufficientInventory},
	{ErrExpired, CodeExpired},
	{ErrUnreachable, CodeUnreachable},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrValidation, CodeValidation},
	{ErrMutationInFlight, CodeMutationInFlight},
	{ErrNotEligible, CodeNotEligible},
}

// ErrorCode returns the wire code for err, or CodeInternal.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorForCode is the inverse of ErrorCode. It returns nil for unknown codes
// and for CodeInternal.
func ErrorForCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}
