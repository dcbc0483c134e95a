// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared by the protocol engine, router and registry.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrAlreadyBound       = errors.New("already bound")
	ErrCredentialMismatch = errors.New("mismatched cert file on bind")
	ErrPathNotFound       = errors.New("path not found")
	ErrHandshakeTimeout   = errors.New("handshake timeout")
	ErrBadRequest         = errors.New("bad request")
	ErrHeaderTooLarge     = errors.New("request header too large")
	ErrProtocol           = errors.New("websocket protocol violation")
	ErrFrameTooLarge      = errors.New("frame payload exceeds maximum allowed size")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrRegistryClosed     = errors.New("registry is closed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ErrorCode classifies registry failures for callers that branch on them.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeAlreadyExists
	ErrCodeUnavailable
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel the error was built from, if any.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap builds a structured error around a sentinel, keeping errors.Is working.
func Wrap(code ErrorCode, cause error) *Error {
	e := NewError(code, cause.Error())
	e.cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first structured error in err's chain.
// Plain errors report ErrCodeInternal; nil reports ErrCodeOK.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HandshakeError is a handshake failure that maps onto an HTTP status line.
// The connection engine renders it as a best-effort response before teardown.
type HandshakeError struct {
	Status int
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Response renders the failure in the response mini-language.
func (e *HandshakeError) Response() Response {
	return Status(e.Status, e.Reason)
}

// NewHandshakeError builds a HandshakeError with the given status and sentinel.
func NewHandshakeError(status int, reason string, err error) *HandshakeError {
	return &HandshakeError{Status: status, Reason: reason, Err: err}
}
