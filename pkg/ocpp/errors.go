package ocpp

import (
	"encoding/json"
	"fmt"
)

// ErrorCode is an OCPP-J RPC framework error code, carried in the third
// element of a CALLERROR frame.
type ErrorCode string

const (
	ErrFormatViolation               ErrorCode = "FormatViolation"
	ErrGenericError                  ErrorCode = "GenericError"
	ErrInternalError                 ErrorCode = "InternalError"
	ErrMessageTypeNotSupported       ErrorCode = "MessageTypeNotSupported"
	ErrNotImplemented                ErrorCode = "NotImplemented"
	ErrNotSupported                  ErrorCode = "NotSupported"
	ErrOccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	ErrPropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrProtocolError                 ErrorCode = "ProtocolError"
	ErrRpcFrameworkError             ErrorCode = "RpcFrameworkError"
	ErrSecurityError                 ErrorCode = "SecurityError"
	ErrTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
)

// Valid reports whether the code is part of the OCPP-J taxonomy.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrFormatViolation, ErrGenericError, ErrInternalError,
		ErrMessageTypeNotSupported, ErrNotImplemented, ErrNotSupported,
		ErrOccurrenceConstraintViolation, ErrPropertyConstraintViolation,
		ErrProtocolError, ErrRpcFrameworkError, ErrSecurityError,
		ErrTypeConstraintViolation:
		return true
	}
	return false
}

// NewCallError creates an outbound CALLERROR correlated to the given message id.
func NewCallError(id string, code ErrorCode, description string) *CallError {
	return &CallError{
		meta:        newMeta(id, TypeCallError, Outbound),
		Code:        code,
		Description: description,
	}
}

// NewCallErrorWithDetails creates a CALLERROR carrying a structured details payload.
func NewCallErrorWithDetails(id string, code ErrorCode, description string, details json.RawMessage) *CallError {
	e := NewCallError(id, code, description)
	e.Details = details
	return e
}

// ProtocolErrorf is shorthand for the synchronicity / routing violations that
// the engine raises most often.
func ProtocolErrorf(id, format string, args ...any) *CallError {
	return NewCallError(id, ErrProtocolError, fmt.Sprintf(format, args...))
}

// Error implements the error interface so a CallError can short-circuit a
// handler chain and be recovered with errors.As at the dispatch boundary.
func (e *CallError) Error() string {
	return fmt.Sprintf("ocpp: %s (%s): %s", e.Code, e.ID(), e.Description)
}
