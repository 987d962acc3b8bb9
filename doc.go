// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package jsonrpc2 is a transport-agnostic implementation of the JSON RPC 2 spec.
//
// https://www.jsonrpc.org/specification
//
// It is intended to be compatible with other implementations at the wire level.
//
// The package exposes three endpoint roles over one duplex message Stream:
// Server dispatches inbound requests to registered handlers, Client
// correlates outbound requests with their responses, and Peer composes both
// onto a single channel. The protocol core exchanges decoded values; text
// encoding is confined to the Stream implementations, and NewStream provides
// newline-delimited JSON framing for byte transports.
package jsonrpc2 // import "go.duplex.dev/jsonrpc2"
