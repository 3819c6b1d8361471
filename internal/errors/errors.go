package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeUser         ErrorType = "USER"
	ErrorTypePrecondition ErrorType = "PRECONDITION"
	ErrorTypeIntegrity    ErrorType = "INTEGRITY"
	ErrorTypeInternal     ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// User reports a bad request by the user; nothing was changed.
func User(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeUser,
		Message: fmt.Sprintf(format, args...),
		Code:    1,
	}
}

// Precondition reports a refused operation that --force would override.
func Precondition(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypePrecondition,
		Message: fmt.Sprintf(format, args...),
		Code:    2,
	}
}

// Integrity reports corrupt or missing repository data.
func Integrity(err error, format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeIntegrity,
		Message: fmt.Sprintf(format, args...),
		Code:    3,
		Err:     err,
	}
}

func Internal(err error, message string) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    4,
		Err:     err,
	}
}

// TypeOf returns the type of the first *Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

func IsUser(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeUser
}

func IsPrecondition(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypePrecondition
}

func IsIntegrity(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeIntegrity
}

func IsInternal(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeInternal
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 1
}
