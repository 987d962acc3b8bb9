// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.duplex.dev/jsonrpc2"
)

type callTest struct {
	method string
	params interface{}
	expect interface{}
}

var callTests = []callTest{
	{
		method: "echo",
		params: map[string]interface{}{"message": "fish"},
		expect: "fish",
	},
	{
		method: "join",
		params: []interface{}{"a", "b", "c"},
		expect: "a/b/c",
	},
	{
		method: "shout",
		params: map[string]interface{}{"message": "quiet", "upper": true},
		expect: "QUIET",
	},
}

// pair connects a client to a server running the test methods over the
// given stream pair.
func pair(t *testing.T, clientSide, serverSide jsonrpc2.Stream) *jsonrpc2.Client {
	t.Helper()

	srv := jsonrpc2.NewServer(serverSide)
	registerTestMethods(srv)
	srv.RegisterMethod("join", func(ctx context.Context, params *jsonrpc2.Params) (interface{}, error) {
		list, err := params.List()
		if err != nil {
			return nil, err
		}
		parts := make([]string, 0, len(list))
		for i := range list {
			part, err := params.Index(i).String()
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}

		return strings.Join(parts, "/"), nil
	})
	srv.RegisterMethod("shout", func(ctx context.Context, params *jsonrpc2.Params) (interface{}, error) {
		msg, err := params.Key("message").String()
		if err != nil {
			return nil, err
		}
		upper, err := params.Key("upper").BoolOr(false)
		if err != nil {
			return nil, err
		}
		if upper {
			msg = strings.ToUpper(msg)
		}

		return msg, nil
	})

	client := jsonrpc2.NewClient(clientSide)
	go srv.Listen(context.Background())    //nolint:errcheck
	go client.Listen(context.Background()) //nolint:errcheck
	t.Cleanup(func() {
		client.Close() //nolint:errcheck
		srv.Close()    //nolint:errcheck
	})

	return client
}

func TestCall(t *testing.T) {
	t.Parallel()

	transports := map[string]func() (jsonrpc2.Stream, jsonrpc2.Stream){
		"pipe":    jsonrpc2.Pipe,
		"netpipe": jsonrpc2.NetPipe,
	}

	for name, factory := range transports {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := testContext(t)
			clientSide, serverSide := factory()
			client := pair(t, clientSide, serverSide)

			for _, test := range callTests {
				result, err := client.Call(ctx, test.method, test.params)
				require.NoErrorf(t, err, "%v: Call failed", test.method)
				assert.Equalf(t, test.expect, result, "%v: result mismatch", test.method)
			}
		})
	}
}

func TestCallUnknownMethod(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	clientSide, serverSide := jsonrpc2.Pipe()
	client := pair(t, clientSide, serverSide)

	_, err := client.Call(ctx, "no.such.method", nil)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc2.MethodNotFound, rpcErr.Code)
	assert.Equal(t, `Unknown method "no.such.method".`, rpcErr.Message)
}

func TestCallPipelined(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	clientSide, serverSide := jsonrpc2.NetPipe()
	client := pair(t, clientSide, serverSide)

	// several requests in flight at once, responses correlate by id
	calls := make([]*jsonrpc2.AsyncCall, 0, 8)
	want := make([]string, 0, 8)
	for _, msg := range []string{"v", "w", "x", "y", "z", "p", "q", "r"} {
		calls = append(calls, client.SendRequest("echo", map[string]interface{}{"message": msg}))
		want = append(want, msg)
	}
	for i, call := range calls {
		result, err := call.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, want[i], result)
	}
}

func TestCallNumericOverWire(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	clientSide, serverSide := jsonrpc2.NetPipe()
	client := pair(t, clientSide, serverSide)

	result, err := client.Call(ctx, "divide", map[string]interface{}{
		"dividend": float64(6),
		"divisor":  float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), result)
}

func TestBatchEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	clientSide, serverSide := jsonrpc2.NetPipe()
	client := pair(t, clientSide, serverSide)

	var calls []*jsonrpc2.AsyncCall
	client.WithBatch(func() {
		calls = append(calls, client.SendRequest("echo", map[string]interface{}{"message": "qux"}))
		calls = append(calls, client.SendRequest("echo", map[string]interface{}{"message": "d"}))
		require.NoError(t, client.SendNotification("echo", map[string]interface{}{"message": "silent"}))
		calls = append(calls, client.SendRequest("echo", map[string]interface{}{"message": "z"}))
	})

	for i, want := range []string{"qux", "d", "z"} {
		result, err := calls[i].Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, result)
	}
}
