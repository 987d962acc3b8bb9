// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

// This file contains the decoded forms of the wire specification.
//
// See https://www.jsonrpc.org/specification for details.
//
// The engines exchange already-decoded JSON values: a message is a
// map[string]interface{}, a batch is a []interface{} of such maps. The six
// JSON kinds are represented as nil, bool, float64/int64, string,
// []interface{} and map[string]interface{}.

// newRequest builds a decoded request message. A nil id produces a
// notification, the id key is omitted entirely.
func newRequest(id interface{}, method string, params interface{}) map[string]interface{} {
	msg := map[string]interface{}{
		"jsonrpc": Version,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}
	if id != nil {
		msg["id"] = id
	}

	return msg
}

// newResult builds a decoded success response. The result key is always
// present, even for a null result.
func newResult(id, result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": Version,
		"result":  result,
		"id":      id,
	}
}

// newErrorResponse builds a decoded error response. The id and data keys are
// always present, null when unknown.
func newErrorResponse(id interface{}, err *Error) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": Version,
		"error": map[string]interface{}{
			"code":    int64(err.Code),
			"message": err.Message,
			"data":    err.Data,
		},
		"id": id,
	}
}

// errorFromWire rebuilds an *Error from a decoded error member.
//
// Tolerates structural malformation, absent or mistyped fields decay to
// their zero values.
func errorFromWire(v interface{}) *Error {
	e := &Error{}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return e
	}
	if code, ok := asInt64(obj["code"]); ok {
		e.Code = Code(code)
	}
	if msg, ok := obj["message"].(string); ok {
		e.Message = msg
	}
	e.Data = obj["data"]

	return e
}

// isResponse reports whether a decoded map is a response, success or error.
func isResponse(msg map[string]interface{}) bool {
	if _, ok := msg["result"]; ok {
		return true
	}
	_, ok := msg["error"]

	return ok
}

// asInt64 normalizes the numeric forms a decoded id can take to an int64
// pending-table key. Fractional numbers do not normalize, no request this
// endpoint sends ever carries one.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}

	return 0, false
}

// isNumber reports whether a decoded value is any JSON number form.
func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, int64, int, float32, int32, uint, uint64:
		return true
	}

	return false
}
