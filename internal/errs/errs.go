package errs

import (
	"errors"
)

// Code is a verification failure code.
type Code string

const (
	Launch          Code = "launch"
	Navigation      Code = "navigation"
	Timeout         Code = "timeout"
	Assertion       Code = "assertion"
	Resource        Code = "resource"
	InvalidArgument Code = "invalid_argument"
	Internal        Code = "internal"
)

// Process exit statuses.
const (
	ExitOK             = 0
	ExitScenarioFailed = 1
	ExitConfig         = 2
	ExitLaunch         = 3
)

// Error is a coded verification error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the outermost error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ExitStatus maps a failure code to the process exit status.
func ExitStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return ExitConfig
	case Launch:
		return ExitLaunch
	default:
		return ExitScenarioFailed
	}
}
