// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type asyncResult struct {
	result interface{}
	err    error
}

// AsyncCall is the pending slot for one sent request.
//
// It is completed exactly once: by the matching response, by an error
// response, or by the client closing.
type AsyncCall struct {
	id       int64
	response chan asyncResult // the channel the completion will be delivered on
	result   chan asyncResult
}

// ID used for this call.
func (ac *AsyncCall) ID() int64 { return ac.id }

// IsReady can be used to check if the result is already prepared.
//
// This is guaranteed to return true on a call for which Await has already
// returned its outcome (not a context error), or a call sent on a client
// that was already closed.
func (ac *AsyncCall) IsReady() bool {
	select {
	case r := <-ac.result:
		ac.result <- r

		return true

	default:
		return false
	}
}

// Await waits for the result of the call.
//
// It returns the result value from a success response, the *Error from an
// error response, or ErrClosed if the client shut down first.
func (ac *AsyncCall) Await(ctx context.Context) (interface{}, error) {
	var r asyncResult
	select {
	case r = <-ac.response:
		// completion just arrived

	case r = <-ac.result:
		// result already available

	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// refill the box for the next caller
	ac.result <- r

	if r.err != nil {
		return nil, r.err
	}

	return r.result, nil
}

// Client is a JSON-RPC 2 client bound to one Stream.
//
// It correlates responses back to the requests that produced them by id;
// ids are integers allocated from a counter that starts at 0 and never
// repeat within the client's lifetime.
type Client struct {
	ch     *channel
	logger *zap.Logger

	seq *atomic.Int64

	pendingMu sync.Mutex // protects the pending map
	pending   map[int64]chan asyncResult

	batchMu    sync.Mutex // protects the batch buffer
	batchDepth int
	batch      []interface{}
}

// NewClient creates a client that sends requests on stream and routes
// responses read from it. Call Listen to start the response router.
func NewClient(stream Stream, opts ...Option) *Client {
	o := newOptions(opts)

	return &Client{
		ch:      newChannel(stream, o.logger),
		logger:  o.logger,
		seq:     atomic.NewInt64(0),
		pending: make(map[int64]chan asyncResult),
	}
}

// Listen subscribes to the stream and blocks until the channel closes.
// It may be called at most once. On shutdown every pending call fails with
// ErrClosed.
func (c *Client) Listen(ctx context.Context) error {
	err := c.ch.listen(ctx, c.route)
	if err == ErrAlreadyListening {
		return err
	}
	c.sweep()

	return err
}

// SendRequest sends a request for method and returns the call to await.
//
// Inside WithBatch the request is buffered until the outermost batch scope
// exits; the returned call is keyed by its own id either way. On a closed
// client the call is already failed with ErrClosed.
func (c *Client) SendRequest(method string, params interface{}) *AsyncCall {
	call := &AsyncCall{
		response: make(chan asyncResult, 1),
		result:   make(chan asyncResult, 1),
	}

	if c.ch.isClosed() {
		call.result <- asyncResult{err: ErrClosed}

		return call
	}

	id := c.seq.Inc() - 1
	call.id = id

	c.pendingMu.Lock()
	c.pending[id] = call.response
	c.pendingMu.Unlock()

	c.logger.Debug(logSend,
		zap.String("method", method),
		zap.Int64("id", id),
		zap.Any("params", params),
	)
	c.enqueue(newRequest(id, method, params))

	// the channel may have closed between the check above and the write;
	// the sweep could then already have run, so fail the slot here
	if c.ch.isClosed() {
		c.complete(id, asyncResult{err: ErrClosed})
	}

	return call
}

// Call sends a request and awaits its result.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return c.SendRequest(method, params).Await(ctx)
}

// SendNotification sends a notification for method. The remote sends no
// response, errors over there are invisible here.
func (c *Client) SendNotification(method string, params interface{}) error {
	if c.ch.isClosed() {
		return ErrClosed
	}

	c.logger.Debug(logSend,
		zap.String("method", method),
		zap.Any("params", params),
	)
	c.enqueue(newRequest(nil, method, params))

	return nil
}

// WithBatch buffers every request and notification sent inside body and
// emits them as a single batch when body returns.
//
// Nested calls flatten into the outermost batch; only the outermost scope
// exit flushes. Each buffered request still completes independently through
// its own AsyncCall.
func (c *Client) WithBatch(body func()) {
	c.batchMu.Lock()
	c.batchDepth++
	c.batchMu.Unlock()

	defer func() {
		c.batchMu.Lock()
		c.batchDepth--
		var flush []interface{}
		if c.batchDepth == 0 {
			flush = c.batch
			c.batch = nil
		}
		c.batchMu.Unlock()

		if len(flush) > 0 {
			c.ch.add(flush)
		}
	}()

	body()
}

// Close shuts the client down and fails every pending call with ErrClosed,
// idempotently.
func (c *Client) Close() error {
	c.ch.close()
	c.sweep()

	return c.ch.Err()
}

// Done is closed when the client has shut down.
func (c *Client) Done() <-chan struct{} { return c.ch.doneChan() }

// Err returns the error the client terminated with, nil on a clean close.
func (c *Client) Err() error { return c.ch.Err() }

// IsClosed reports whether shutdown has started.
func (c *Client) IsClosed() bool { return c.ch.isClosed() }

func (c *Client) enqueue(msg interface{}) {
	c.batchMu.Lock()
	if c.batchDepth > 0 {
		c.batch = append(c.batch, msg)
		c.batchMu.Unlock()

		return
	}
	c.batchMu.Unlock()

	c.ch.add(msg)
}

// route delivers one inbound message to the pending call it completes.
// Batch responses recurse; anything unmatched or malformed is dropped, the
// remote peer guarantees protocol integrity.
func (c *Client) route(msg interface{}) {
	switch m := msg.(type) {
	case []interface{}:
		for _, entry := range m {
			c.route(entry)
		}

	case map[string]interface{}:
		if !isResponse(m) {
			c.logger.Debug("dropping non-response message", zap.Any("msg", m))
			return
		}

		id, ok := asInt64(m["id"])
		if !ok {
			c.logger.Debug("dropping response without usable id", zap.Any("msg", m))
			return
		}

		if errVal, ok := m["error"]; ok && errVal != nil {
			c.complete(id, asyncResult{err: errorFromWire(errVal)})
			return
		}
		c.complete(id, asyncResult{result: m["result"]})

	default:
		c.logger.Debug("dropping malformed message", zap.Any("msg", msg))
	}
}

// complete resolves the pending slot for id, if it is still pending.
func (c *Client) complete(id int64, r asyncResult) {
	c.pendingMu.Lock()
	slot, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !found {
		c.logger.Debug(logReceive, zap.Int64("id", id), zap.String("state", "unmatched, dropped"))
		return
	}

	c.logger.Debug(logReceive, zap.Int64("id", id), zap.Error(r.err))
	slot <- r
}

// sweep fails every pending call with ErrClosed. Entries are removed
// exactly once, a call completed by route is never swept.
func (c *Client) sweep() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan asyncResult)
	c.pendingMu.Unlock()

	for id, slot := range pending {
		c.logger.Debug("failing dangling request", zap.Int64("id", id))
		slot <- asyncResult{err: ErrClosed}
	}
}
