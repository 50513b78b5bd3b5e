// Package scripterr defines the error taxonomy shared by the resolution and
// loading pipeline: resolution failures, load failures (retryable or fatal),
// configuration mistakes, and coded failures reported by a native executor.
package scripterr

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a failure reported by a native executor.
type Code string

const (
	NetworkFailure            Code = "NetworkFailure"
	RequestFailure            Code = "RequestFailure"
	RequestTimeout            Code = "RequestTimeout"
	ScriptCachingFailure      Code = "ScriptCachingFailure"
	ScriptEvalFailure         Code = "ScriptEvalFailure"
	UnsupportedScheme         Code = "UnsupportedScheme"
	CodeSigningFailure        Code = "CodeSigningFailure"
	ScriptInvalidationFailure Code = "ScriptInvalidationFailure"
)

// Retryable reports whether a failure with this code is transport related
// and may succeed on another attempt.
func (c Code) Retryable() bool {
	switch c {
	case NetworkFailure, RequestFailure, RequestTimeout, ScriptCachingFailure:
		return true
	default:
		return false
	}
}

// NativeError is a failure reported by a native executor.
type NativeError struct {
	Code    Code
	Message string
	Err     error
}

// NewNative builds a NativeError wrapping err.
func NewNative(code Code, err error, format string, args ...any) *NativeError {
	return &NativeError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *NativeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *NativeError) Unwrap() error { return e.Err }

// ResolutionError is returned when no resolver or resolve hook produced a
// locator for a script, or when the resolved locator could not be used.
type ResolutionError struct {
	ScriptID string
	Caller   string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Caller != "" {
		return fmt.Sprintf("scriptmanager: failed to resolve script %q (caller %q): %v", e.ScriptID, e.Caller, e.Err)
	}
	return fmt.Sprintf("scriptmanager: failed to resolve script %q: %v", e.ScriptID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// LoadError is returned when loading or prefetching a script failed and no
// error hook recovered it.
type LoadError struct {
	ScriptID string
	Caller   string
	// URL of the attempted locator, kept for diagnostics.
	URL       string
	Retryable bool
	Err       error
}

func (e *LoadError) Error() string {
	code := ""
	if c, ok := CodeOf(e.Err); ok {
		code = fmt.Sprintf(" [%s]", c)
	}
	return fmt.Sprintf("scriptmanager: failed to load script %q%s from %s: %v", e.ScriptID, code, e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigurationError reports misuse of the manager, such as using it before
// it was initialized.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "scriptmanager: " + e.Message
}

// ErrNoResolvers is wrapped by a ResolutionError when the chain is empty.
var ErrNoResolvers = errors.New("no script resolvers were added")

// ErrUnresolved is wrapped by a ResolutionError when every resolver declined.
var ErrUnresolved = errors.New("no resolver was able to resolve script")

// CodeOf extracts the native error code from err, if any.
func CodeOf(err error) (Code, bool) {
	var nerr *NativeError
	if errors.As(err, &nerr) {
		return nerr.Code, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RequestTimeout, true
	}
	return "", false
}

// IsRetryable reports whether err carries a retryable native code. Errors
// without a code are fatal.
func IsRetryable(err error) bool {
	code, ok := CodeOf(err)
	return ok && code.Retryable()
}
