// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// log message constants for the send and receive directions.
const (
	logSend    = "send"
	logReceive = "receive"
)

// channel is the manager that every endpoint engine sits on.
//
// It owns the input subscription of one Stream, forwards decoded inbound
// messages to a consumer, passes outbound writes to the Stream, converts malformed
// frames into outbound ParseError responses, and guarantees that nothing is
// forwarded or written once shutdown has started.
type channel struct {
	stream Stream
	logger *zap.Logger

	listening *atomic.Bool
	closed    *atomic.Bool
	err       *atomic.Error
	done      chan struct{}
	closeOnce sync.Once
}

func newChannel(stream Stream, logger *zap.Logger) *channel {
	return &channel{
		stream:    stream,
		logger:    logger,
		listening: atomic.NewBool(false),
		closed:    atomic.NewBool(false),
		err:       atomic.NewError(nil),
		done:      make(chan struct{}),
	}
}

// listen subscribes to the input and forwards each message to consume,
// blocking until the channel closes. It may be called at most once.
//
// A channel closed before listen is permanently inert, listen returns
// immediately.
func (c *channel) listen(ctx context.Context, consume func(interface{})) error {
	if !c.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}
	if c.closed.Load() {
		return nil
	}

	for {
		msg, err := c.stream.Read(ctx)
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				// malformed frame: reply on the sink, keep reading
				c.logger.Debug("malformed frame", zap.String("text", frameErr.Text()), zap.Error(frameErr))
				c.add(newErrorResponse(nil, &Error{
					Code:    ParseError,
					Message: frameErr.Error(),
					Data:    map[string]interface{}{"request": frameErr.Text()},
				}))

				continue
			}

			c.finish(err)

			return c.err.Load()
		}

		if c.closed.Load() {
			return c.err.Load()
		}

		consume(msg)
	}
}

// add enqueues a decoded outbound message. After close it is a silent no-op.
func (c *channel) add(msg interface{}) {
	if c.closed.Load() {
		c.logger.Debug("dropping message on closed channel", zap.Any("msg", msg))
		return
	}

	if err := c.stream.Write(context.Background(), msg); err != nil {
		c.logger.Warn("write failed", zap.Error(err))
		c.finish(err)
	}
}

// close cancels the input subscription and closes the output, idempotently.
func (c *channel) close() {
	c.finish(nil)
}

// finish records the terminal error, closes the stream and completes done.
// A clean shutdown, a remote close and a context cancellation all count as
// error-free termination.
func (c *channel) finish(err error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err != nil && !isTerminationError(err) {
			c.err.Store(err)
		}
		if cerr := c.stream.Close(); cerr != nil {
			c.logger.Debug("stream close", zap.Error(cerr))
		}
		close(c.done)
	})
}

func (c *channel) doneChan() <-chan struct{} { return c.done }

func (c *channel) isClosed() bool { return c.closed.Load() }

// Err returns the error the channel terminated with, nil on a clean close.
func (c *channel) Err() error { return c.err.Load() }

func isTerminationError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled)
}
