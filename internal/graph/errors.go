package graph

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier for an error kind. Callers
// (human or LLM) branch on codes rather than parsing message text.
type Code string

const (
	CodeOK                 Code = "ok"
	CodeDuplicateEntity    Code = "duplicate_entity"
	CodeUnknownEntity      Code = "unknown_entity"
	CodeDuplicateRelation  Code = "duplicate_relation"
	CodeInvalidArgument    Code = "invalid_argument"
	CodePersistenceFailure Code = "persistence_failure"
)

// Error is an error carrying a taxonomy code. The wrapped cause, if any,
// is reachable through errors.Unwrap.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a coded error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapPersistence marks a flush failure. The in-memory mutation is kept;
// the caller is told durability lagged so retry or backup logic can be
// layered externally.
func WrapPersistence(err error) *Error {
	return &Error{Code: CodePersistenceFailure, Message: "flush to durable storage failed", Err: err}
}

// CodeOf extracts the taxonomy code from err, or CodeOK for nil and an
// empty code for errors from outside the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
