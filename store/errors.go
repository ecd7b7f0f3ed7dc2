// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package store

import "fmt"

// ErrCode classifies the errors the storage layer can return.
type ErrCode int

const (
	// ErrNotFound indicates the addressed path does not exist. Read
	// operations never return this directly to callers; they report
	// absence as (zero value, false, nil) instead.
	ErrNotFound ErrCode = iota
	// ErrNotReadable indicates the mount refused a read.
	ErrNotReadable
	// ErrNotWritable indicates the mount does not support writes, or the
	// caller addressed a path outside the writable overlay's coverage.
	ErrNotWritable
	// ErrConflict indicates a mount/unmount/remount was attempted
	// against an inconsistent mount table.
	ErrConflict
	// ErrFormat indicates a malformed archive or config document.
	ErrFormat
	// ErrValidation indicates a semantic rejection, e.g. a missing
	// required field or a forbidden operation on a reserved plug-in id.
	ErrValidation
	// ErrIO indicates an underlying disk or archive failure.
	ErrIO
	// ErrCodeLoad indicates a code artifact failed to load or
	// instantiate.
	ErrCodeLoad
	// ErrInit indicates a plug-in's init() or destroy() failed.
	ErrInit
)

func (c ErrCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrNotReadable:
		return "not_readable"
	case ErrNotWritable:
		return "not_writable"
	case ErrConflict:
		return "conflict"
	case ErrFormat:
		return "format_error"
	case ErrValidation:
		return "validation_error"
	case ErrIO:
		return "io_error"
	case ErrCodeLoad:
		return "code_load_error"
	case ErrInit:
		return "init_error"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the storage and plugin layers.
type Error struct {
	Code    ErrCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.As/errors.Is.
func (e *Error) Unwrap() error { return e.Cause }

func newErr(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newErrWithCause(code ErrCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFoundf builds an ErrNotFound error.
func NotFoundf(format string, args ...interface{}) *Error { return newErr(ErrNotFound, format, args...) }

// NotReadablef builds an ErrNotReadable error.
func NotReadablef(format string, args ...interface{}) *Error {
	return newErr(ErrNotReadable, format, args...)
}

// NotWritablef builds an ErrNotWritable error.
func NotWritablef(format string, args ...interface{}) *Error {
	return newErr(ErrNotWritable, format, args...)
}

// Conflictf builds an ErrConflict error.
func Conflictf(format string, args ...interface{}) *Error { return newErr(ErrConflict, format, args...) }

// FormatErrorf builds an ErrFormat error wrapping cause.
func FormatErrorf(cause error, format string, args ...interface{}) *Error {
	return newErrWithCause(ErrFormat, cause, format, args...)
}

// ValidationErrorf builds an ErrValidation error.
func ValidationErrorf(format string, args ...interface{}) *Error {
	return newErr(ErrValidation, format, args...)
}

// IOErrorf builds an ErrIO error wrapping cause.
func IOErrorf(cause error, format string, args ...interface{}) *Error {
	return newErrWithCause(ErrIO, cause, format, args...)
}

// CodeLoadErrorf builds an ErrCodeLoad error for the named constructor.
func CodeLoadErrorf(name string, cause error) *Error {
	return newErrWithCause(ErrCodeLoad, cause, "failed to load %q", name)
}

// InitErrorf builds an ErrInit error wrapping cause.
func InitErrorf(cause error, format string, args ...interface{}) *Error {
	return newErrWithCause(ErrInit, cause, format, args...)
}

func isCode(err error, code ErrCode) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool { return isCode(err, ErrNotFound) }

// IsConflict reports whether err is an ErrConflict.
func IsConflict(err error) bool { return isCode(err, ErrConflict) }

// IsNotWritable reports whether err is an ErrNotWritable.
func IsNotWritable(err error) bool { return isCode(err, ErrNotWritable) }

// IsValidation reports whether err is an ErrValidation.
func IsValidation(err error) bool { return isCode(err, ErrValidation) }
