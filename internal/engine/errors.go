package engine

import (
	"errors"
	"fmt"
	"strconv"
)

// RuntimeError represents a fatal condition detected by the scheduler.
//
// Runtime errors include:
//   - Bind failure: the transport could not open its listener
//   - Invalid rules: validation found at least one violation
//   - Out of range: a rule touched a register outside the bank
//   - Zero modulus: a range rule with MaxValue -1
//
// None of them is retried.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Position is the 1-based rule position, 0 when not rule-specific.
	Position int

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBindFailed indicates the transport could not start.
	ErrCodeBindFailed RuntimeErrorCode = "BIND_FAILED"

	// ErrCodeInvalidRules indicates startup validation rejected the rule set.
	ErrCodeInvalidRules RuntimeErrorCode = "INVALID_RULES"

	// ErrCodeOutOfRange indicates a rule addressed a register outside the bank.
	ErrCodeOutOfRange RuntimeErrorCode = "OUT_OF_RANGE"

	// ErrCodeZeroModulus indicates a range rule whose MaxValue+1 is zero.
	ErrCodeZeroModulus RuntimeErrorCode = "ZERO_MODULUS"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Position > 0 {
		msg = fmt.Sprintf("%s (rule=%d)", msg, e.Position)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsBindError returns true if the error is a transport bind failure.
func IsBindError(err error) bool {
	return hasCode(err, ErrCodeBindFailed)
}

// IsValidationError returns true if the error is a rule validation failure.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeInvalidRules)
}

// IsOutOfRange returns true if the error is an out-of-range register access.
func IsOutOfRange(err error) bool {
	return hasCode(err, ErrCodeOutOfRange)
}

// NewBindError creates a RuntimeError for a failed transport start.
func NewBindError(addr string, port int, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeBindFailed,
		Message: "unable to start modbus server",
		Details: map[string]string{
			"address": addr,
			"port":    strconv.Itoa(port),
		},
		Err: err,
	}
}

// NewInvalidRulesError creates a RuntimeError for a rejected rule set.
func NewInvalidRulesError(err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRules,
		Message: "there are invalid rules",
		Err:     err,
	}
}

// NewOutOfRangeError creates a RuntimeError for a rule that addressed
// registers outside the bank.
func NewOutOfRangeError(position int, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeOutOfRange,
		Message:  "register access out of range",
		Position: position,
		Err:      err,
	}
}

// NewZeroModulusError creates a RuntimeError for a range rule that cannot
// be evaluated because MaxValue+1 is zero.
func NewZeroModulusError(position int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeZeroModulus,
		Message:  "range rule has MaxValue -1, modulus is zero",
		Position: position,
	}
}
