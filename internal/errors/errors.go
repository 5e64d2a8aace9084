package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an anno error code.
type ErrorCode string

const (
	ErrCorpusRead        ErrorCode = "CORPUS_READ"        // 500, fatal at startup
	ErrCategoryRead      ErrorCode = "CATEGORY_READ"      // 500, fatal at startup
	ErrAnnotationParse   ErrorCode = "ANNOTATION_PARSE"   // 422
	ErrLocalIO           ErrorCode = "LOCAL_IO"           // 500
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE" // 503, permanent for the session
	ErrRemoteIO          ErrorCode = "REMOTE_IO"          // 502
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// AnnoError represents a structured error with code, status, and details.
type AnnoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *AnnoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AnnoError) Unwrap() error {
	return e.cause
}

// NewCorpusRead creates an error for a missing or unreadable corpus file.
func NewCorpusRead(path string, err error) *AnnoError {
	return &AnnoError{
		Code:    ErrCorpusRead,
		Status:  500,
		Message: fmt.Sprintf("cannot read corpus %s: %v", path, err),
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewCategoryRead creates an error for a missing or malformed category file.
func NewCategoryRead(path string, err error) *AnnoError {
	return &AnnoError{
		Code:    ErrCategoryRead,
		Status:  500,
		Message: fmt.Sprintf("cannot read categories %s: %v", path, err),
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewAnnotationParse creates a 422 error for an annotation file that cannot be interpreted.
func NewAnnotationParse(path string, line int, reason string) *AnnoError {
	return &AnnoError{
		Code:    ErrAnnotationParse,
		Status:  422,
		Message: fmt.Sprintf("%s:%d: %s", path, line, reason),
		Details: map[string]any{"path": path, "line": line},
	}
}

// NewLocalIO creates an error for a failed read or write of the local annotation file.
func NewLocalIO(op, path string, err error) *AnnoError {
	return &AnnoError{
		Code:    ErrLocalIO,
		Status:  500,
		Message: fmt.Sprintf("%s %s: %v", op, path, err),
		Details: map[string]any{"op": op, "path": path},
		cause:   err,
	}
}

// NewRemoteUnavailable creates a 503 error for a mirror that could not be resolved.
func NewRemoteUnavailable(reason string) *AnnoError {
	return &AnnoError{
		Code:    ErrRemoteUnavailable,
		Status:  503,
		Message: fmt.Sprintf("remote mirror unavailable: %s", reason),
	}
}

// NewRemoteIO creates a 502 error for a failed upload or download.
func NewRemoteIO(op, key string, err error) *AnnoError {
	return &AnnoError{
		Code:    ErrRemoteIO,
		Status:  502,
		Message: fmt.Sprintf("remote %s %s: %v", op, key, err),
		Details: map[string]any{"op": op, "key": key},
		cause:   err,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AnnoError {
	return &AnnoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a text cannot be found.
func NewNotFound(identifier string) *AnnoError {
	return &AnnoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("text not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileMissing creates a 404 error for a local file that has not been written yet.
func NewFileMissing(path string) *AnnoError {
	return &AnnoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "local annotation file not written yet",
		Details: map[string]any{"path": path},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AnnoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AnnoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is an AnnoError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AnnoError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns err as an AnnoError, wrapping unknown errors as INTERNAL.
func As(err error) *AnnoError {
	var aErr *AnnoError
	if stderrors.As(err, &aErr) {
		return aErr
	}
	return NewInternal(err)
}
