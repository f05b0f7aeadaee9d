package publish

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure so callers can tell them apart.
type ErrorKind string

const (
	ConfigError     ErrorKind = "config"
	TransportError  ErrorKind = "transport"
	ValidationError ErrorKind = "validation"
)

// Error is a failure attributed to a platform.
type Error struct {
	Platform Platform
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Platform, e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ConfigErrorf builds a configuration error for platform.
func ConfigErrorf(platform Platform, format string, args ...any) error {
	return &Error{Platform: platform, Kind: ConfigError, Err: fmt.Errorf(format, args...)}
}

// Validationf builds a validation error for platform.
func Validationf(platform Platform, format string, args ...any) error {
	return &Error{Platform: platform, Kind: ValidationError, Err: fmt.Errorf(format, args...)}
}

// Transport tags err as a transport failure of platform. Errors that are
// already classified are returned unchanged.
func Transport(platform Platform, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	var me MissingEnvError
	if errors.As(err, &me) {
		return &Error{Platform: platform, Kind: ConfigError, Err: err}
	}
	return &Error{Platform: platform, Kind: TransportError, Err: err}
}

// KindOf classifies err. Unclassified errors count as transport errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var me MissingEnvError
	if errors.As(err, &me) {
		return ConfigError
	}
	return TransportError
}

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}
