// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Peer is a bidirectional JSON-RPC 2 endpoint: simultaneously a client and
// a server on the same Stream.
//
// Inbound traffic is demultiplexed by shape: responses go to the inner
// client, everything else to the inner server. A batch is routed wholesale
// by its first element; a batch mixing requests and responses is not
// something a conforming remote sends, and is routed by that first element.
type Peer struct {
	stream Stream
	logger *zap.Logger

	server *Server
	client *Client

	toServer *conduit
	toClient *conduit

	listening *atomic.Bool
	routeErr  *atomic.Error
	done      chan struct{}
	closeOnce sync.Once
}

// NewPeer creates a peer on stream. Call Listen to start both engines.
func NewPeer(stream Stream, opts ...Option) *Peer {
	o := newOptions(opts)

	p := &Peer{
		stream:    stream,
		logger:    o.logger,
		listening: atomic.NewBool(false),
		routeErr:  atomic.NewError(nil),
		done:      make(chan struct{}),
	}
	p.toServer = newConduit(p)
	p.toClient = newConduit(p)
	p.server = NewServer(p.toServer, opts...)
	p.client = NewClient(p.toClient, opts...)
	p.toServer.down = p.server.Done()
	p.toClient.down = p.client.Done()

	go func() {
		<-p.server.Done()
		<-p.client.Done()
		close(p.done)
	}()

	return p
}

// RegisterMethod registers handler on the server side of the peer.
func (p *Peer) RegisterMethod(name string, handler Handler) {
	p.server.RegisterMethod(name, handler)
}

// RegisterMethodNoParams registers a no-parameter handler on the server side.
func (p *Peer) RegisterMethodNoParams(name string, handler NoParamsHandler) {
	p.server.RegisterMethodNoParams(name, handler)
}

// RegisterFallback appends handler to the server side's fallback chain.
func (p *Peer) RegisterFallback(handler Handler) {
	p.server.RegisterFallback(handler)
}

// SendRequest sends a request through the client side of the peer.
func (p *Peer) SendRequest(method string, params interface{}) *AsyncCall {
	return p.client.SendRequest(method, params)
}

// Call sends a request through the client side and awaits its result.
func (p *Peer) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return p.client.Call(ctx, method, params)
}

// SendNotification sends a notification through the client side of the peer.
func (p *Peer) SendNotification(method string, params interface{}) error {
	return p.client.SendNotification(method, params)
}

// WithBatch batches client-side sends, see Client.WithBatch.
func (p *Peer) WithBatch(body func()) {
	p.client.WithBatch(body)
}

// Listen starts both inner engines and routes inbound traffic between them,
// blocking until the channel closes. It may be called at most once.
func (p *Peer) Listen(ctx context.Context) error {
	if !p.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}

	go p.server.Listen(ctx) //nolint:errcheck // inner engine errors surface through Err
	go p.client.Listen(ctx) //nolint:errcheck

	for {
		msg, err := p.stream.Read(ctx)
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				p.logger.Debug("malformed frame", zap.String("text", frameErr.Text()), zap.Error(frameErr))
				p.write(newErrorResponse(nil, &Error{
					Code:    ParseError,
					Message: frameErr.Error(),
					Data:    map[string]interface{}{"request": frameErr.Text()},
				}))

				continue
			}

			if !isTerminationError(err) {
				p.routeErr.Store(err)
			}

			break
		}

		p.route(msg)
	}

	p.toServer.shut()
	p.toClient.shut()
	<-p.server.Done()
	<-p.client.Done()

	return p.Err()
}

// route hands one inbound message to the engine its shape selects.
func (p *Peer) route(msg interface{}) {
	if isClientBound(msg) {
		p.toClient.deliver(msg)
		return
	}
	// the server also owns every malformed shape, it emits the
	// InvalidRequest reply
	p.toServer.deliver(msg)
}

func isClientBound(msg interface{}) bool {
	switch m := msg.(type) {
	case map[string]interface{}:
		return isResponse(m)
	case []interface{}:
		if len(m) == 0 {
			return false
		}
		first, ok := m[0].(map[string]interface{})

		return ok && isResponse(first)
	}

	return false
}

// Close closes both inner engines, idempotently, and with them the
// underlying stream.
func (p *Peer) Close() error {
	return multierr.Append(p.server.Close(), p.client.Close())
}

// Done is closed when both inner engines have shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Err returns the error the peer terminated with, nil on a clean close.
func (p *Peer) Err() error {
	if err := p.routeErr.Load(); err != nil {
		return err
	}

	return multierr.Append(p.server.Err(), p.client.Err())
}

// IsClosed reports whether either inner engine has started shutting down.
func (p *Peer) IsClosed() bool {
	return p.server.IsClosed() || p.client.IsClosed()
}

// write sends directly on the shared sink, used for router-level replies.
func (p *Peer) write(msg interface{}) {
	if err := p.stream.Write(context.Background(), msg); err != nil {
		p.logger.Warn("write failed", zap.Error(err))
	}
}

// closeStream closes the shared underlying stream exactly once; either
// inner engine shutting down triggers it.
func (p *Peer) closeStream() {
	p.closeOnce.Do(func() {
		if err := p.stream.Close(); err != nil {
			p.logger.Debug("stream close", zap.Error(err))
		}
	})
}

// conduit is the private inbound lane of one inner engine. Reads drain the
// routed messages; writes go straight to the shared sink.
type conduit struct {
	peer *Peer
	in   chan interface{}
	down <-chan struct{} // the engine's Done channel
	once sync.Once
}

func newConduit(p *Peer) *conduit {
	return &conduit{
		peer: p,
		in:   make(chan interface{}, pipeBuffer),
	}
}

// deliver hands a routed message to the engine, dropping it once the engine
// is down so the router never blocks on a dead lane.
func (c *conduit) deliver(msg interface{}) {
	select {
	case c.in <- msg:
	case <-c.down:
	}
}

// shut ends the inbound lane; once the buffered messages are drained, the
// engine's Read returns io.EOF.
func (c *conduit) shut() {
	c.once.Do(func() { close(c.in) })
}

// Read implements Stream.Read.
func (c *conduit) Read(ctx context.Context) (interface{}, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}

		return msg, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements Stream.Write.
func (c *conduit) Write(ctx context.Context, msg interface{}) error {
	return c.peer.stream.Write(ctx, msg)
}

// Close implements Stream.Close.
func (c *conduit) Close() error {
	c.peer.closeStream()
	return nil
}
