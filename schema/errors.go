package schema

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all engine failure modes.
type ErrorCode string

const (
	// UnsupportedLanguage indicates the file extension is not allow-listed.
	UnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	// FileTooLarge indicates the file exceeds the configured size limit.
	FileTooLarge ErrorCode = "FILE_TOO_LARGE"
	// ParseFailure indicates malformed source. Recoverable per file.
	ParseFailure ErrorCode = "PARSE_FAILURE"
	// CapacityExceeded indicates a notebook pattern or step limit was hit.
	CapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	// NotFound indicates an unknown snippet or pattern id.
	NotFound ErrorCode = "NOT_FOUND"
	// CorruptStorage indicates persisted notebook state could not be decoded.
	CorruptStorage ErrorCode = "CORRUPT_STORAGE"
	// Timeout indicates a per-file parse exceeded its time bound.
	Timeout ErrorCode = "TIMEOUT"
	// InvalidTransition indicates an approval transition the state machine does not allow.
	InvalidTransition ErrorCode = "INVALID_TRANSITION"
	// Unreadable indicates a file could not be opened or read.
	Unreadable ErrorCode = "UNREADABLE"
)

// Error is an engine error carrying a stable code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// NewError creates a new Error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Errorf creates a new Error with a formatted message and no cause.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == ""
	}
	return false
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Sentinels usable with errors.Is, matching any error of the same code.
var (
	ErrUnsupportedLanguage = &Error{Code: UnsupportedLanguage}
	ErrFileTooLarge        = &Error{Code: FileTooLarge}
	ErrParseFailure        = &Error{Code: ParseFailure}
	ErrCapacityExceeded    = &Error{Code: CapacityExceeded}
	ErrNotFound            = &Error{Code: NotFound}
	ErrCorruptStorage      = &Error{Code: CorruptStorage}
	ErrTimeout             = &Error{Code: Timeout}
	ErrInvalidTransition   = &Error{Code: InvalidTransition}
)

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Failure records a per-file failure collected during workspace-wide operations.
type Failure struct {
	Path    string    `json:"path"`
	Reason  ErrorCode `json:"reason"`
	Message string    `json:"message"`
}

// NewFailure converts an error into a Failure for the given path.
func NewFailure(path string, err error) Failure {
	code := CodeOf(err)
	if code == "" {
		code = Unreadable
	}
	return Failure{Path: path, Reason: code, Message: err.Error()}
}
