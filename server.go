// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Handler is a registered method implementation.
//
// Returning an *Error sends that error object to the remote verbatim; any
// other non-nil error is reported as a ServerError.
type Handler func(ctx context.Context, params *Params) (interface{}, error)

// NoParamsHandler is a method implementation that declares it accepts no
// parameters. A request that carries params for it is rejected with
// InvalidParams before the handler runs.
type NoParamsHandler func(ctx context.Context) (interface{}, error)

type methodEntry struct {
	handler  Handler
	noParams bool
}

// Server is a JSON-RPC 2 server bound to one Stream.
//
// Methods may be registered before or while the server is listening.
type Server struct {
	ch     *channel
	logger *zap.Logger

	strict           bool
	onUnhandledError func(err error, stack string)

	mu        sync.Mutex // protects methods and fallbacks
	methods   map[string]methodEntry
	fallbacks []Handler
}

// NewServer creates a server that reads requests from stream and writes
// responses back to it. Call Listen to start serving.
func NewServer(stream Stream, opts ...Option) *Server {
	o := newOptions(opts)

	return &Server{
		ch:               newChannel(stream, o.logger),
		logger:           o.logger,
		strict:           o.strict,
		onUnhandledError: o.onUnhandledError,
		methods:          make(map[string]methodEntry),
	}
}

// RegisterMethod registers handler for the exact, case-sensitive method
// name. Registering a name twice is a programming error and panics.
func (s *Server) RegisterMethod(name string, handler Handler) {
	s.register(name, methodEntry{handler: handler})
}

// RegisterMethodNoParams registers a handler that accepts no parameters.
func (s *Server) RegisterMethodNoParams(name string, handler NoParamsHandler) {
	s.register(name, methodEntry{
		handler: func(ctx context.Context, _ *Params) (interface{}, error) {
			return handler(ctx)
		},
		noParams: true,
	})
}

func (s *Server) register(name string, entry methodEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.methods[name]; exists {
		panic("jsonrpc2: method already registered: " + name)
	}
	s.methods[name] = entry
}

// RegisterFallback appends handler to the fallback chain, tried in
// registration order for requests whose method name is not registered.
// A fallback declines by returning a MethodNotFound *Error.
func (s *Server) RegisterFallback(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks = append(s.fallbacks, handler)
}

// Listen subscribes to the stream and blocks until the channel closes,
// returning the error that terminated it, if any. It may be called at most
// once.
func (s *Server) Listen(ctx context.Context) error {
	return s.ch.listen(ctx, func(msg interface{}) {
		go s.handleMessage(ctx, msg)
	})
}

// Close shuts the server down, idempotently. In-flight handlers keep
// running but their responses are suppressed.
func (s *Server) Close() error {
	s.ch.close()
	return s.ch.Err()
}

// Done is closed when the server has shut down.
func (s *Server) Done() <-chan struct{} { return s.ch.doneChan() }

// Err returns the error the server terminated with, nil on a clean close.
func (s *Server) Err() error { return s.ch.Err() }

// IsClosed reports whether shutdown has started.
func (s *Server) IsClosed() bool { return s.ch.isClosed() }

func (s *Server) handleMessage(ctx context.Context, msg interface{}) {
	if batch, ok := msg.([]interface{}); ok {
		s.handleBatch(ctx, batch)
		return
	}

	if resp := s.handleSingle(ctx, msg); resp != nil {
		s.send(resp)
	}
}

func (s *Server) handleBatch(ctx context.Context, batch []interface{}) {
	if len(batch) == 0 {
		err := NewError(InvalidRequest, "A batch must contain at least one request.")
		s.send(newErrorResponse(nil, err.WithData(map[string]interface{}{"request": batch})))

		return
	}

	// one entry, one slot: notifications leave a nil to filter out, so the
	// reply has exactly one element per non-notification entry
	responses := make([]map[string]interface{}, len(batch))
	var wg sync.WaitGroup
	for i, entry := range batch {
		wg.Add(1)
		go func(i int, entry interface{}) {
			defer wg.Done()
			responses[i] = s.handleSingle(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	reply := make([]interface{}, 0, len(responses))
	for _, resp := range responses {
		if resp != nil {
			reply = append(reply, resp)
		}
	}
	if len(reply) > 0 {
		s.send(reply)
	}
}

// handleSingle validates and dispatches one decoded message, returning the
// response to emit, or nil for notifications.
func (s *Server) handleSingle(ctx context.Context, msg interface{}) map[string]interface{} {
	req, ok := msg.(map[string]interface{})
	if !ok {
		err := NewError(InvalidRequest, "Request must be an Array or an Object.")
		return newErrorResponse(nil, err.WithData(map[string]interface{}{"request": msg}))
	}

	id, hasID := req["id"]

	if verr := s.validate(req); verr != nil {
		return newErrorResponse(replyID(id, hasID), verr.WithData(map[string]interface{}{"request": msg}))
	}

	method := req["method"].(string)
	params := req["params"]
	isNotify := !hasID || id == nil

	s.logger.Debug(logReceive,
		zap.String("method", method),
		zap.Any("id", id),
		zap.Any("params", params),
	)

	result, herr := s.dispatch(ctx, method, params)
	if isNotify {
		return nil
	}
	if herr != nil {
		return newErrorResponse(id, herr)
	}

	return newResult(id, result)
}

// validate enforces the JSON-RPC 2.0 framing rules on a single decoded
// request map.
func (s *Server) validate(req map[string]interface{}) *Error {
	ver, hasVer := req["jsonrpc"]
	switch {
	case !hasVer:
		if s.strict {
			return NewError(InvalidRequest, `Request must contain a "jsonrpc" key.`)
		}
	case ver != Version:
		return Errorf(InvalidRequest, `Invalid JSON-RPC version %s, expected "2.0".`, encodeForMessage(ver))
	}

	method, hasMethod := req["method"]
	if !hasMethod {
		return NewError(InvalidRequest, `Request must contain a "method" key.`)
	}
	if _, ok := method.(string); !ok {
		return Errorf(InvalidRequest, "Request method must be a string, but was %s.", encodeForMessage(method))
	}

	if params, ok := req["params"]; ok && params != nil {
		switch params.(type) {
		case []interface{}, map[string]interface{}:
		default:
			return Errorf(InvalidRequest, "Request params must be an Array or an Object, but was %s.", encodeForMessage(params))
		}
	}

	if id, ok := req["id"]; ok && id != nil {
		if _, isString := id.(string); !isString && !isNumber(id) {
			return Errorf(InvalidRequest, "Request id must be a string, number, or null, but was %s.", encodeForMessage(id))
		}
	}

	return nil
}

// dispatch resolves the method and runs it, falling through the fallback
// chain for unregistered names.
func (s *Server) dispatch(ctx context.Context, method string, params interface{}) (interface{}, *Error) {
	s.mu.Lock()
	entry, found := s.methods[method]
	fallbacks := make([]Handler, len(s.fallbacks))
	copy(fallbacks, s.fallbacks)
	s.mu.Unlock()

	view := NewParams(method, params)

	if found {
		if entry.noParams && params != nil {
			return nil, Errorf(InvalidParams, "No parameters are allowed for method %q.", method)
		}

		return s.invoke(ctx, entry.handler, view)
	}

	for _, fallback := range fallbacks {
		result, ferr := s.invoke(ctx, fallback, view)
		if ferr != nil && ferr.Code == MethodNotFound {
			// the fallback declined, try the next one
			continue
		}

		return result, ferr
	}

	return nil, NewMethodNotFound(method)
}

// invoke runs one handler, translating panics and non-*Error failures into
// ServerError values carrying the stringified call chain.
func (s *Server) invoke(ctx context.Context, handler Handler, params *Params) (result interface{}, rpcErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if ok {
				err = pkgerrors.WithStack(err)
			} else {
				err = pkgerrors.Errorf("%v", r)
			}
			result, rpcErr = nil, s.unhandled(err)
		}
	}()

	res, err := handler(ctx, params)
	if err == nil {
		return res, nil
	}

	var wire *Error
	if xerrors.As(err, &wire) {
		return nil, wire
	}

	return nil, s.unhandled(withStack(err))
}

// unhandled routes a non-*Error handler failure to the configured sink and
// builds the ServerError response for it.
func (s *Server) unhandled(err error) *Error {
	stack := stackString(err)
	if s.onUnhandledError != nil {
		s.onUnhandledError(err, stack)
	} else {
		s.logger.Warn("unhandled handler error", zap.Error(err))
	}

	return toError(err, stack)
}

func (s *Server) send(msg interface{}) {
	if s.ch.isClosed() {
		return
	}
	s.logger.Debug(logSend, zap.Any("msg", msg))
	s.ch.add(msg)
}

// replyID picks the id for a validation error response: the request's id
// when it carried a usable one, null otherwise.
func replyID(id interface{}, hasID bool) interface{} {
	if !hasID {
		return nil
	}
	if _, isString := id.(string); isString || isNumber(id) {
		return id
	}

	return nil
}

// stackTracer is the stack surface of github.com/pkg/errors values.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// withStack ensures err carries a call chain.
func withStack(err error) error {
	var st stackTracer
	if xerrors.As(err, &st) {
		return err
	}

	return pkgerrors.WithStack(err)
}

// stackString renders the call chain of err.
func stackString(err error) string {
	var st stackTracer
	if xerrors.As(err, &st) {
		return fmt.Sprintf("%+v", st.StackTrace())
	}

	return fmt.Sprintf("%+v", err)
}
