// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.duplex.dev/jsonrpc2"
)

// startClient runs a client over an in-memory pipe and returns the remote
// end the test drives by hand.
func startClient(t *testing.T, opts ...jsonrpc2.Option) (*jsonrpc2.Client, jsonrpc2.Stream) {
	t.Helper()

	local, remote := jsonrpc2.Pipe()
	client := jsonrpc2.NewClient(local, opts...)

	go client.Listen(context.Background()) //nolint:errcheck
	t.Cleanup(func() { client.Close() })   //nolint:errcheck

	return client, remote
}

func TestClientRequestIDs(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	first := client.SendRequest("foo", nil)
	second := client.SendRequest("bar", map[string]interface{}{"x": int64(1)})
	assert.Equal(t, int64(0), first.ID(), "ids start at 0")
	assert.Equal(t, int64(1), second.ID(), "ids increase monotonically")

	got := readMessage(ctx, t, remote)
	want := map[string]interface{}{"jsonrpc": "2.0", "method": "foo", "id": int64(0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	got = readMessage(ctx, t, remote)
	want = map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "bar",
		"params":  map[string]interface{}{"x": int64(1)},
		"id":      int64(1),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestClientAwaitResult(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	call := client.SendRequest("greet", nil)
	readMessage(ctx, t, remote) // consume the request

	writeMessage(ctx, t, remote, map[string]interface{}{
		"jsonrpc": "2.0",
		"result":  "hi",
		"id":      int64(0),
	})

	result, err := call.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)

	// a second Await returns the same result
	result, err = call.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
	assert.True(t, call.IsReady())
}

func TestClientAwaitError(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	call := client.SendRequest("divide", map[string]interface{}{"divisor": int64(0)})
	readMessage(ctx, t, remote)

	writeMessage(ctx, t, remote, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    int64(1),
			"message": "Cannot divide by zero.",
			"data":    nil,
		},
		"id": int64(0),
	})

	_, err := call.Await(ctx)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc2.Code(1), rpcErr.Code)
	assert.Equal(t, "Cannot divide by zero.", rpcErr.Message)
	assert.Nil(t, rpcErr.Data)
}

func TestClientNotification(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	require.NoError(t, client.SendNotification("ping", []interface{}{"now"}))

	got := readMessage(ctx, t, remote)
	want := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "ping",
		"params":  []interface{}{"now"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("notification mismatch (-want +got):\n%s", diff)
	}
}

func TestClientBatch(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	var calls []*jsonrpc2.AsyncCall
	client.WithBatch(func() {
		calls = append(calls, client.SendRequest("foo", nil))
		calls = append(calls, client.SendRequest("a", nil))
		calls = append(calls, client.SendRequest("w", nil))
	})

	// the whole batch travels as one frame
	batch, ok := readMessage(ctx, t, remote).([]interface{})
	require.True(t, ok, "batched requests must be sent as a list")
	require.Len(t, batch, 3)
	for i, entry := range batch {
		assert.Equal(t, int64(i), entry.(map[string]interface{})["id"])
	}

	// reply out of order, every future still resolves by id
	writeMessage(ctx, t, remote, []interface{}{
		map[string]interface{}{"jsonrpc": "2.0", "result": "z", "id": int64(2)},
		map[string]interface{}{"jsonrpc": "2.0", "result": "qux", "id": int64(0)},
		map[string]interface{}{"jsonrpc": "2.0", "result": "d", "id": int64(1)},
	})

	for i, want := range []string{"qux", "d", "z"} {
		result, err := calls[i].Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, result)
	}
}

func TestClientNestedBatchFlattens(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	client.WithBatch(func() {
		client.SendRequest("outer", nil)
		client.WithBatch(func() {
			client.SendRequest("inner", nil)
			client.SendNotification("note", nil) //nolint:errcheck
		})
		client.SendRequest("tail", nil)
	})

	batch, ok := readMessage(ctx, t, remote).([]interface{})
	require.True(t, ok)
	require.Len(t, batch, 4, "nested scopes flatten into the outermost batch")

	methods := make([]string, 0, len(batch))
	for _, entry := range batch {
		methods = append(methods, entry.(map[string]interface{})["method"].(string))
	}
	assert.Equal(t, []string{"outer", "inner", "note", "tail"}, methods)
}

func TestClientUnmatchedResponseDropped(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	// nothing pending under this id, the response is silently dropped
	writeMessage(ctx, t, remote, map[string]interface{}{"jsonrpc": "2.0", "result": "stale", "id": int64(99)})
	// so are structurally malformed messages
	writeMessage(ctx, t, remote, "garbage")
	writeMessage(ctx, t, remote, map[string]interface{}{"jsonrpc": "2.0", "result": true, "id": "not-ours"})

	// the client still works afterwards
	call := client.SendRequest("live", nil)
	readMessage(ctx, t, remote)
	writeMessage(ctx, t, remote, map[string]interface{}{"jsonrpc": "2.0", "result": "ok", "id": int64(0)})

	result, err := call.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestClientCloseFailsPending(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	call := client.SendRequest("hang", nil)
	readMessage(ctx, t, remote)

	require.NoError(t, client.Close())

	_, err := call.Await(ctx)
	assert.ErrorIs(t, err, jsonrpc2.ErrClosed)
}

func TestClientRemoteCloseFailsPending(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, remote := startClient(t)

	call := client.SendRequest("hang", nil)
	readMessage(ctx, t, remote)

	require.NoError(t, remote.Close())

	_, err := call.Await(ctx)
	assert.ErrorIs(t, err, jsonrpc2.ErrClosed)

	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("client did not shut down after remote close")
	}
	assert.NoError(t, client.Err(), "a remote close is not an error")
}

func TestClientSendAfterClose(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	client, _ := startClient(t)
	require.NoError(t, client.Close())

	call := client.SendRequest("late", nil)
	_, err := call.Await(ctx)
	assert.ErrorIs(t, err, jsonrpc2.ErrClosed)
	assert.True(t, call.IsReady(), "a send on a closed client fails immediately")

	assert.ErrorIs(t, client.SendNotification("late", nil), jsonrpc2.ErrClosed)
}

func TestClientCloseIdempotent(t *testing.T) {
	t.Parallel()

	client, _ := startClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())

	select {
	case <-client.Done():
	default:
		t.Fatal("Done must be resolved after Close")
	}
}

func TestClientAwaitContextCancelled(t *testing.T) {
	t.Parallel()

	client, remote := startClient(t)

	call := client.SendRequest("hang", nil)
	readMessage(testContext(t), t, remote)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := call.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
