// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Stream abstracts the transport mechanics from the JSON RPC protocol.
//
// Unlike a byte stream, a Stream carries decoded messages: a single message
// is a map[string]interface{}, a batch is a []interface{}. The protocol
// engines never serialize; text encoding lives entirely in the Stream
// implementation.
//
// Read is not safe for concurrent use, it is expected it will be used by a
// single endpoint in a safe manner. Write may be called concurrently.
type Stream interface {
	// Read gets the next message from the stream.
	//
	// A Read that consumed a frame which failed to decode returns a
	// *FrameError carrying the raw text; the stream itself stays usable.
	Read(ctx context.Context) (interface{}, error)

	// Write sends a message to the stream.
	Write(ctx context.Context, msg interface{}) error

	// Close closes the underlying transport.
	Close() error
}

// FrameError reports a frame that was not valid JSON.
//
// The channel manager converts it into an outbound ParseError response whose
// data carries the original text.
type FrameError struct {
	text string
	err  error
}

// Error implements error. The message is the wire-visible ParseError message.
func (e *FrameError) Error() string { return "Invalid JSON: " + e.err.Error() }

// Unwrap implements errors.Unwrap.
func (e *FrameError) Unwrap() error { return e.err }

// Text returns the raw text of the offending frame.
func (e *FrameError) Text() string { return e.text }

// NewStream returns a Stream framing newline-delimited JSON text over rwc.
//
// Each line is one message. Lines that fail to decode surface as
// *FrameError from Read rather than terminating the stream.
func NewStream(rwc io.ReadWriteCloser) Stream {
	return &rawStream{
		rwc: rwc,
		in:  bufio.NewReader(rwc),
	}
}

type rawStream struct {
	rwc io.ReadWriteCloser
	in  *bufio.Reader

	mu sync.Mutex // serializes writes
}

// Read implements Stream.Read.
func (s *rawStream) Read(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			// a final unterminated frame is still a frame
			if err == io.EOF && strings.TrimSpace(line) != "" {
				return decodeFrame(strings.TrimSpace(line))
			}

			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		return decodeFrame(line)
	}
}

func decodeFrame(text string) (interface{}, error) {
	var msg interface{}
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return nil, &FrameError{text: text, err: err}
	}

	return msg, nil
}

// Write implements Stream.Write.
func (s *rawStream) Write(ctx context.Context, msg interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rwc.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}

// Close implements Stream.Close.
func (s *rawStream) Close() error {
	return s.rwc.Close()
}

// Pipe returns a connected pair of in-memory Streams.
//
// Messages written to one end are read, still decoded, from the other; no
// serialization takes place. Closing either end unblocks both.
func Pipe() (Stream, Stream) {
	ab := make(chan interface{}, pipeBuffer)
	ba := make(chan interface{}, pipeBuffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &pipeStream{in: ba, out: ab, localDone: aDone, remoteDone: bDone}
	b := &pipeStream{in: ab, out: ba, localDone: bDone, remoteDone: aDone}

	return a, b
}

const pipeBuffer = 16

type pipeStream struct {
	in         chan interface{}
	out        chan interface{}
	localDone  chan struct{}
	remoteDone chan struct{}
	once       sync.Once
}

// Read implements Stream.Read.
func (p *pipeStream) Read(ctx context.Context) (interface{}, error) {
	// drain buffered messages even after the peer closed
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.remoteDone:
		return nil, io.EOF
	case <-p.localDone:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements Stream.Write.
func (p *pipeStream) Write(ctx context.Context, msg interface{}) error {
	select {
	case <-p.localDone:
		return io.ErrClosedPipe
	case <-p.remoteDone:
		return io.ErrClosedPipe
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.localDone:
		return io.ErrClosedPipe
	case <-p.remoteDone:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Stream.Close.
func (p *pipeStream) Close() error {
	p.once.Do(func() { close(p.localDone) })
	return nil
}
