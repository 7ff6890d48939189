package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorCode identifies a failure class across the daemon.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Authentication errors
	ErrCodeAuthNoSession    ErrorCode = "AUTH_NO_SESSION"
	ErrCodeAuthLoginTimeout ErrorCode = "AUTH_LOGIN_TIMEOUT"
	ErrCodeAuthLogoutFailed ErrorCode = "AUTH_LOGOUT_FAILED"
	ErrCodeAuthSurface      ErrorCode = "AUTH_SURFACE"

	// Remote API errors
	ErrCodeRemoteRequest ErrorCode = "REMOTE_REQUEST"

	// Storage errors
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageCorrupt ErrorCode = "STORAGE_CORRUPT"

	// Relay errors
	ErrCodeRelayProtocol    ErrorCode = "RELAY_PROTOCOL"
	ErrCodeRelayUnavailable ErrorCode = "RELAY_UNAVAILABLE"

	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is the structured error carried through the daemon. UserMessage,
// when set, is what relay responses surface to end users; Message is for
// logs and operators.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Stack       []Frame
	Retryable   bool
	UserMessage string
}

// Frame is one captured call site.
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates a structured error with a captured stack.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		Stack:   captureStack(2),
	}
}

// Wrap attaches a code and message to an underlying error. Returns nil
// for a nil err so call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
		Stack:      captureStack(2),
	}
}

// WithContext records a key-value pair for diagnostics.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks whether retrying the operation could succeed.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the human-friendly message shown to users.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// Error renders "[CODE] message {k: v, ...}: underlying" with context
// keys sorted so the output is stable.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether retrying could succeed.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// StackTrace renders the captured stack, one frame per line.
func (e *Error) StackTrace() string {
	var sb strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, Frame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return out
}

// IsCode reports whether err (or anything it wraps) carries code.
func IsCode(err error, code ErrorCode) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code == code
	}
	return false
}

// GetCode extracts the code from err, defaulting to INTERNAL for
// non-structured errors and "" for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ErrCodeInternal
}
