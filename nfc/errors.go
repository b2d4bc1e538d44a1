package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of bridge error for programmatic handling.
type ErrorCode int

const (
	// Bridge errors (100-199)
	ErrCodeNotReady ErrorCode = iota + 100
	ErrCodeInvalidListener
	ErrCodeInvalidPayload

	// Session errors (200-299)
	ErrCodeSessionFailed ErrorCode = iota + 197
	ErrCodeReadFailed
	ErrCodeDeviceUnavailable
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Initialize", "AddListener")
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// ErrNotReady matches any not-ready error with errors.Is.
var ErrNotReady = &NFCError{Code: ErrCodeNotReady, Message: NotReadyMessage}

// NewNotReadyError creates the error returned when a session is requested
// before the adapter reported itself enabled.
func NewNotReadyError(op string, status Status) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotReady,
		Op:      op,
		Message: NotReadyMessage,
		Cause:   fmt.Errorf("status is %s", status),
	}
}

// NewInvalidListenerError creates an error for a rejected listener registration.
func NewInvalidListenerError(op, reason string) *NFCError {
	return &NFCError{
		Code:    ErrCodeInvalidListener,
		Op:      op,
		Message: reason,
	}
}

// NewInvalidPayloadError creates an error for a raw payload that cannot be decoded.
func NewInvalidPayloadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeInvalidPayload,
		Op:      op,
		Message: "invalid payload",
		Cause:   cause,
	}
}

// NewSessionError creates an error describing a failed reader session.
func NewSessionError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeSessionFailed,
		Op:      op,
		Message: "session failed",
		Cause:   cause,
	}
}

// NewReadError creates an error for tag read failures.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewDeviceUnavailableError creates an error for a reader that cannot be opened.
func NewDeviceUnavailableError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeDeviceUnavailable,
		Op:      op,
		Message: "reader unavailable",
		Cause:   cause,
	}
}

// IsNotReadyError checks if an error is the not-ready error.
func IsNotReadyError(err error) bool {
	return GetErrorCode(err) == ErrCodeNotReady
}

// IsInvalidPayloadError checks if an error reports an undecodable payload.
func IsInvalidPayloadError(err error) bool {
	return GetErrorCode(err) == ErrCodeInvalidPayload
}

// IsSessionError checks if an error reports a failed session.
func IsSessionError(err error) bool {
	return GetErrorCode(err) == ErrCodeSessionFailed
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
