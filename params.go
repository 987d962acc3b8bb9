// SPDX-FileCopyrightText: Copyright 2026 The Duplex Authors
// SPDX-License-Identifier: BSD-3-Clause

package jsonrpc2

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Params is a view over the params value of a single request.
//
// It gives handlers typed access to positional or named parameters, turning
// every type mismatch or missing required parameter into an InvalidParams
// error that names the offending parameter, so handlers can return the error
// unmodified and produce a spec-compliant response.
type Params struct {
	method string
	value  interface{}
	exists bool
}

// NewParams returns a view over value for the named method.
//
// The engine builds one per dispatch; it is exported so handler logic can be
// exercised in isolation.
func NewParams(method string, value interface{}) *Params {
	return &Params{
		method: method,
		value:  value,
		exists: value != nil,
	}
}

// Method returns the name of the method the parameters were sent to.
func (p *Params) Method() string { return p.method }

// Value returns the raw decoded params value, nil when absent.
func (p *Params) Value() interface{} { return p.value }

// Exists reports whether the request carried a params value at all.
func (p *Params) Exists() bool { return p.exists }

// IsPositional reports whether the parameters were passed by position.
func (p *Params) IsPositional() bool {
	_, ok := p.value.([]interface{})
	return ok
}

// Len returns the number of parameters, 0 when absent.
func (p *Params) Len() int {
	switch v := p.value.(type) {
	case []interface{}:
		return len(v)
	case map[string]interface{}:
		return len(v)
	}

	return 0
}

// List returns the parameters as a positional list.
func (p *Params) List() ([]interface{}, error) {
	if v, ok := p.value.([]interface{}); ok {
		return v, nil
	}

	return nil, NewInvalidParams(fmt.Sprintf("Parameters for method %q must be passed by position.", p.method))
}

// Map returns the parameters as a named mapping.
func (p *Params) Map() (map[string]interface{}, error) {
	if v, ok := p.value.(map[string]interface{}); ok {
		return v, nil
	}

	return nil, NewInvalidParams(fmt.Sprintf("Parameters for method %q must be passed by name.", p.method))
}

// Key returns a view over the named parameter.
func (p *Params) Key(name string) *Param {
	obj, ok := p.value.(map[string]interface{})
	if !ok {
		return &Param{method: p.method, name: name}
	}
	v, exists := obj[name]

	return &Param{method: p.method, name: name, value: v, exists: exists}
}

// Index returns a view over the parameter at position i.
func (p *Params) Index(i int) *Param {
	name := fmt.Sprintf("#%d", i+1)
	list, ok := p.value.([]interface{})
	if !ok || i < 0 || i >= len(list) {
		return &Param{method: p.method, name: name}
	}

	return &Param{method: p.method, name: name, value: list[i], exists: true}
}

// Param is a view over one parameter value.
//
// Typed accessors return an InvalidParams error when the parameter is absent
// or has the wrong type; the Or variants substitute a default for an absent
// parameter but still reject a present value of the wrong type.
type Param struct {
	method string
	name   string
	value  interface{}
	exists bool
}

// Exists reports whether the parameter was provided.
func (v *Param) Exists() bool { return v.exists }

// Name returns the parameter's name, "#N" for positional parameters.
func (v *Param) Name() string { return v.name }

// Value returns the raw parameter value, failing if it was not provided.
func (v *Param) Value() (interface{}, error) {
	if !v.exists {
		return nil, v.missing()
	}

	return v.value, nil
}

// Key returns a view over the named member of an Object parameter.
func (v *Param) Key(name string) *Param {
	child := v.name + "." + name
	obj, ok := v.value.(map[string]interface{})
	if !v.exists || !ok {
		return &Param{method: v.method, name: child}
	}
	val, exists := obj[name]

	return &Param{method: v.method, name: child, value: val, exists: exists}
}

// Index returns a view over the i'th element of an Array parameter.
func (v *Param) Index(i int) *Param {
	child := fmt.Sprintf("%s[%d]", v.name, i)
	list, ok := v.value.([]interface{})
	if !v.exists || !ok || i < 0 || i >= len(list) {
		return &Param{method: v.method, name: child}
	}

	return &Param{method: v.method, name: child, value: list[i], exists: true}
}

// Num returns the parameter as a number.
func (v *Param) Num() (float64, error) {
	if !v.exists {
		return 0, v.missing()
	}
	switch n := v.value.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}

	return 0, v.mismatch("a number")
}

// NumOr returns the parameter as a number, or def when absent.
func (v *Param) NumOr(def float64) (float64, error) {
	if !v.exists {
		return def, nil
	}

	return v.Num()
}

// Int returns the parameter as an integer. Whole floats qualify.
func (v *Param) Int() (int64, error) {
	if !v.exists {
		return 0, v.missing()
	}
	if n, ok := asInt64(v.value); ok {
		return n, nil
	}

	return 0, v.mismatch("an integer")
}

// IntOr returns the parameter as an integer, or def when absent.
func (v *Param) IntOr(def int64) (int64, error) {
	if !v.exists {
		return def, nil
	}

	return v.Int()
}

// String returns the parameter as a string.
func (v *Param) String() (string, error) {
	if !v.exists {
		return "", v.missing()
	}
	if s, ok := v.value.(string); ok {
		return s, nil
	}

	return "", v.mismatch("a string")
}

// StringOr returns the parameter as a string, or def when absent.
func (v *Param) StringOr(def string) (string, error) {
	if !v.exists {
		return def, nil
	}

	return v.String()
}

// Bool returns the parameter as a boolean.
func (v *Param) Bool() (bool, error) {
	if !v.exists {
		return false, v.missing()
	}
	if b, ok := v.value.(bool); ok {
		return b, nil
	}

	return false, v.mismatch("a boolean")
}

// BoolOr returns the parameter as a boolean, or def when absent.
func (v *Param) BoolOr(def bool) (bool, error) {
	if !v.exists {
		return def, nil
	}

	return v.Bool()
}

// List returns the parameter as an Array.
func (v *Param) List() ([]interface{}, error) {
	if !v.exists {
		return nil, v.missing()
	}
	if l, ok := v.value.([]interface{}); ok {
		return l, nil
	}

	return nil, v.mismatch("an Array")
}

// ListOr returns the parameter as an Array, or def when absent.
func (v *Param) ListOr(def []interface{}) ([]interface{}, error) {
	if !v.exists {
		return def, nil
	}

	return v.List()
}

// Map returns the parameter as an Object.
func (v *Param) Map() (map[string]interface{}, error) {
	if !v.exists {
		return nil, v.missing()
	}
	if m, ok := v.value.(map[string]interface{}); ok {
		return m, nil
	}

	return nil, v.mismatch("an Object")
}

// MapOr returns the parameter as an Object, or def when absent.
func (v *Param) MapOr(def map[string]interface{}) (map[string]interface{}, error) {
	if !v.exists {
		return def, nil
	}

	return v.Map()
}

// display renders the parameter name for error messages: positional
// parameters read "#2", named parameters are quoted.
func (v *Param) display() string {
	if strings.HasPrefix(v.name, "#") {
		return v.name
	}

	return fmt.Sprintf("%q", v.name)
}

func (v *Param) missing() *Error {
	return NewInvalidParams(fmt.Sprintf("Required parameter %s not provided.", v.display()))
}

func (v *Param) mismatch(kind string) *Error {
	return NewInvalidParams(fmt.Sprintf("Parameter %s for method %q must be %s, but was %s.",
		v.display(), v.method, kind, encodeForMessage(v.value)))
}

// encodeForMessage renders a decoded value for inclusion in an error message.
func encodeForMessage(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}
