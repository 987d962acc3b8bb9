// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"fmt"
	"regexp"

	"golang.org/x/xerrors"
)

// Error represents a JSON-RPC error raised by a handler or received from
// the remote endpoint.
//
// Handlers return an *Error to control the error object sent to the remote,
// including its Data payload. Any other error a handler returns is reported
// as a ServerError.
type Error struct {
	// Code a number indicating the error type that occurred.
	Code Code `json:"code"`

	// Message a string providing a short description of the error.
	Message string `json:"message"`

	// Data a Primitive or Structured value that contains additional
	// information about the error. Always present on the wire, null when unset.
	Data interface{} `json:"data"`

	frame xerrors.Frame
	err   error
}

// compile time check whether the Error implements error interface.
var _ error = (*Error)(nil)

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Format implements fmt.Formatter.
func (e *Error) Format(s fmt.State, c rune) {
	xerrors.FormatError(e, s, c)
}

// FormatError implements xerrors.Formatter.
func (e *Error) FormatError(p xerrors.Printer) (next error) {
	if e.Message == "" {
		p.Printf("code=%v", e.Code)
	} else {
		p.Printf("%s (code=%v)", e.Message, e.Code)
	}
	e.frame.Format(p)

	return e.err
}

// Unwrap implements xerrors.Wrapper.
//
// The returns the error underlying the receiver, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// WithData returns a copy of e carrying data as the error's data value.
func (e *Error) WithData(data interface{}) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
		frame:   e.frame,
		err:     e.err,
	}
}

// NewError builds a Error struct for the suppied code and message.
func NewError(c Code, args ...interface{}) *Error {
	e := &Error{
		Code:    c,
		Message: fmt.Sprint(args...),
		frame:   xerrors.Caller(1),
	}
	e.err = xerrors.New(e.Message)

	return e
}

// Errorf builds a Error struct for the suppied code, format and args.
func Errorf(c Code, format string, args ...interface{}) *Error {
	e := &Error{
		Code:    c,
		Message: fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
	e.err = xerrors.New(e.Message)

	return e
}

// NewMethodNotFound builds the canonical MethodNotFound error for method.
func NewMethodNotFound(method string) *Error {
	e := &Error{
		Code:    MethodNotFound,
		Message: fmt.Sprintf("Unknown method %q.", method),
		frame:   xerrors.Caller(1),
	}
	e.err = xerrors.New(e.Message)

	return e
}

// NewInvalidParams builds the canonical InvalidParams error with message.
func NewInvalidParams(message string) *Error {
	e := &Error{
		Code:    InvalidParams,
		Message: message,
		frame:   xerrors.Caller(1),
	}
	e.err = xerrors.New(e.Message)

	return e
}

// constErr represents a error constant.
type constErr string

// compile time check whether the constErr implements error interface.
var _ error = (*constErr)(nil)

// Error implements error.Error.
func (e constErr) Error() string { return string(e) }

var (
	// ErrClosed reports an operation on an endpoint whose channel is closed.
	// It is a local state error, it never travels on the wire; every call
	// still pending when the endpoint closes fails with it.
	ErrClosed = constErr("Client is closed.")

	// ErrAlreadyListening reports a second call to Listen on one endpoint.
	ErrAlreadyListening = constErr("endpoint is already listening")
)

// errKindPrefix matches a leading "SomeError: " or "SomeException: " tag as
// produced by stringified language-native errors.
var errKindPrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(Exception|Error): `)

// errorMessage returns the message for err with any leading error-kind tag
// removed. The removal is cosmetic only, the full string is preserved in the
// ServerError data payload.
func errorMessage(err error) string {
	return errKindPrefix.ReplaceAllString(err.Error(), "")
}

// toError coerces an arbitrary handler error to a wire error.
//
// An *Error passes through unchanged, anything else is reported as a
// ServerError carrying the full string form and the stack in data.
func toError(err error, stack string) *Error {
	var wire *Error
	if xerrors.As(err, &wire) {
		return wire
	}

	return &Error{
		Code:    ServerError,
		Message: errorMessage(err),
		Data: map[string]interface{}{
			"full":  err.Error(),
			"stack": stack,
		},
	}
}
