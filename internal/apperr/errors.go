// Package apperr defines the error taxonomy of the sync engine.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an Error.
type Code string

const (
	CodeNetwork        Code = "NETWORK_ERROR"
	CodeHTTP           Code = "HTTP_ERROR"
	CodeSerialization  Code = "SERIALIZATION_ERROR"
	CodeQueueExhausted Code = "QUEUE_EXHAUSTED"
	CodeConfigInvalid  Code = "CONFIG_INVALID"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotClient      = errors.New("sync is only initiated by the client role")
	ErrDisabled       = errors.New("sync is disabled")
)

// Error is a classified error. StatusCode is set for CodeHTTP.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err under code.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HTTP reports a non-2xx response.
func HTTP(method, url string, status int, body string) *Error {
	e := &Error{
		Code:       CodeHTTP,
		Message:    fmt.Sprintf("%s %s", method, url),
		StatusCode: status,
	}
	if body != "" {
		e.Err = errors.New(body)
	}
	return e
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
