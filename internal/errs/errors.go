// Package errs holds the typed error shared by every pipeline stage.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorType int

const (
	ErrNotFound ErrorType = iota
	ErrParse
	ErrTranslation
	ErrMux
	ErrConfig
	ErrFileWrite
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrNotFound:
		return "NotFound"
	case ErrParse:
		return "Parse"
	case ErrTranslation:
		return "Translation"
	case ErrMux:
		return "Mux"
	case ErrConfig:
		return "Config"
	case ErrFileWrite:
		return "FileWrite"
	default:
		return "Unknown"
	}
}

type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Wrap(cause error, errorType ErrorType, message string) *Error {
	e := New(errorType, message)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// IsType reports whether any error in err's chain is an *Error of errorType.
func IsType(err error, errorType ErrorType) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type == errorType
	}
	return false
}

// TypeOf returns the type of the outermost *Error in err's chain, or ErrUnknown.
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrUnknown
}
