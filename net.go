// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"context"
	"fmt"
	"net"
)

// This file contains implementations of the transport primitives that use the standard network
// package.

// NetStream returns a Stream framing newline-delimited JSON over conn.
func NetStream(conn net.Conn) Stream {
	return NewStream(conn)
}

// Dial connects to address and returns a framed Stream over the connection.
func Dial(ctx context.Context, network, address string) (Stream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return NewStream(conn), nil
}

// NetPipe returns two framed Streams connected by an in-memory full duplex
// network connection. Unlike Pipe, messages cross a real encode/decode
// boundary.
func NetPipe() (Stream, Stream) {
	c1, c2 := net.Pipe()
	return NewStream(c1), NewStream(c2)
}
