// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"go.uber.org/zap"
)

// options represents the configuration shared by the endpoint constructors.
type options struct {
	logger           *zap.Logger
	strict           bool
	onUnhandledError func(err error, stack string)
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		strict: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Option represents a functional option for the endpoint constructors.
type Option func(*options)

// WithLogger apply custom logger to the endpoint.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStrictProtocolChecks controls whether requests missing the "jsonrpc"
// key are rejected. Defaults to true; a present key with the wrong value is
// rejected either way.
func WithStrictProtocolChecks(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithUnhandledErrorHandler apply a sink for handler failures that are not
// *Error values. The sink receives the failure and its stringified call
// chain; without one, failures are logged and otherwise swallowed.
func WithUnhandledErrorHandler(fn func(err error, stack string)) Option {
	return func(o *options) {
		o.onUnhandledError = fn
	}
}
