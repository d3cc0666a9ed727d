package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// RigError is an error that carries operator guidance.
type RigError interface {
	// Error returns a user-facing string explaining the error
	Error() string

	// Directive returns a user-facing string explaining how to overcome the error
	Directive() string
}

type ValidationError struct {
	Message string
}

func NewValidationError(message string) ValidationError {
	return ValidationError{Message: message}
}

var _ error = ValidationError{}

func (v ValidationError) Error() string {
	return v.Message
}

func IsValidationError(err error) bool {
	return As(err, &ValidationError{})
}

func New(message string) error {
	return stderrors.New(message)
}

func Errorf(format string, a ...interface{}) error {
	return fmt.Errorf(format, a...) //nolint:wrapcheck // constructor
}

// Wrap annotates err with message, keeping err reachable through Unwrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

func WrapAndTrace(err error, messages ...string) error {
	if err == nil {
		return nil
	}
	message := ""
	for _, m := range messages {
		message += fmt.Sprintf(" %s", m)
	}
	return errors.Wrap(err, MakeErrorMessage(message))
}

func MakeErrorMessage(message string) string {
	_, fn, line, _ := runtime.Caller(2)
	return fmt.Sprintf("[error] %s:%d %s\n\t", fn, line, message)
}
