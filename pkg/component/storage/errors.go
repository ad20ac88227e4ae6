package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the PostgreSQL and Redis backends. Use WithMessage
// or WithCause to attach backend-specific detail before returning them.
var (
	// ErrNotConnected indicates the backend client was never initialized
	// or its connection has been closed.
	ErrNotConnected = &StorageError{
		Code:    "NOT_CONNECTED",
		Message: "storage client is not connected",
	}

	// ErrConnectionFailed indicates an attempt to reach the backend failed,
	// whether due to network, credentials, or the service being down.
	ErrConnectionFailed = &StorageError{
		Code:    "CONNECTION_FAILED",
		Message: "failed to connect to storage backend",
	}

	// ErrTimeout indicates a backend operation exceeded its deadline.
	ErrTimeout = &StorageError{
		Code:    "TIMEOUT",
		Message: "storage operation timed out",
	}

	// ErrInvalidConfig indicates the backend configuration failed validation.
	ErrInvalidConfig = &StorageError{
		Code:    "INVALID_CONFIG",
		Message: "invalid storage configuration",
	}

	// ErrClientNotFound indicates no backend with the requested name is
	// registered in the Manager.
	ErrClientNotFound = &StorageError{
		Code:    "CLIENT_NOT_FOUND",
		Message: "storage client not found",
	}

	// ErrClientAlreadyExists indicates a backend with the same name is
	// already registered.
	ErrClientAlreadyExists = &StorageError{
		Code:    "CLIENT_ALREADY_EXISTS",
		Message: "storage client already exists",
	}

	// ErrOperationFailed is a generic failure meant to be wrapped with
	// operation-specific detail.
	ErrOperationFailed = &StorageError{
		Code:    "OPERATION_FAILED",
		Message: "storage operation failed",
	}
)

// StorageError carries a machine-readable code alongside a human-readable
// message. Errors with the same code compare equal under errors.Is.
type StorageError struct {
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped variants still compare equal to the sentinel.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with the message replaced, keeping the code.
func (e *StorageError) WithMessage(msg string) *StorageError {
	return &StorageError{
		Code:    e.Code,
		Message: msg,
		Cause:   e.Cause,
		Context: e.Context,
	}
}

// WithCause returns a copy wrapping the given underlying error.
func (e *StorageError) WithCause(cause error) *StorageError {
	return &StorageError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   cause,
		Context: e.Context,
	}
}

// WithContext returns a copy with additional key/value context merged in.
func (e *StorageError) WithContext(ctx map[string]interface{}) *StorageError {
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}

	return &StorageError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Context: merged,
	}
}

// GetContext retrieves a context value by key.
func (e *StorageError) GetContext(key string) (interface{}, bool) {
	if e.Context == nil {
		return nil, false
	}
	val, ok := e.Context[key]
	return val, ok
}

// IsStorageError reports whether err has a StorageError in its chain.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// GetStorageError extracts a StorageError from an error chain.
func GetStorageError(err error) (*StorageError, bool) {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr, true
	}
	return nil, false
}
