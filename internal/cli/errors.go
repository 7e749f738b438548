package cli

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitNotFound     = 3
	ExitConflict     = 4
	ExitDBError      = 5
	ExitConfigError  = 6
)

// CommandError is an error with an exit code and optional suggestion.
type CommandError struct {
	Code       int
	Message    string
	Cause      error
	Suggestion string
}

func (e *CommandError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for any error. Service errors are mapped by
// their code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case apperrors.CodeValidation:
			return ExitInvalidArgs
		case apperrors.CodeNotFound:
			return ExitNotFound
		case apperrors.CodeConflict:
			return ExitConflict
		}
	}
	return ExitGeneralError
}

// FormatErrorMessage renders an error for the terminal, including validation
// details and any suggestion.
func FormatErrorMessage(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())

	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		for field, detail := range domainErr.Details {
			fmt.Fprintf(&b, "\n  %s: %v", field, detail)
		}
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Suggestion != "" {
		b.WriteString("\n\nSuggestion: ")
		b.WriteString(cmdErr.Suggestion)
	}
	return b.String()
}

// ErrInvalidArgs creates an error for invalid arguments.
func ErrInvalidArgs(format string, args ...interface{}) error {
	return &CommandError{Code: ExitInvalidArgs, Message: fmt.Sprintf(format, args...)}
}

// ErrConfig creates an error for missing or invalid configuration.
func ErrConfig(format string, args ...interface{}) error {
	return &CommandError{
		Code:       ExitConfigError,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: "Set the variable in the environment or in a .env file in the working directory.",
	}
}

// ErrDatabase wraps a database failure.
func ErrDatabase(cause error, format string, args ...interface{}) error {
	return &CommandError{Code: ExitDBError, Message: fmt.Sprintf(format, args...), Cause: cause}
}
