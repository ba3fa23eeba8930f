// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc defines the public wire types for JSON-RPC 2.0 messages,
// as used by the protocol engine in package mcp.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ID is a JSON-RPC request identifier. It holds either a string, an int64,
// or no value at all (for notifications).
//
// The zero ID is not valid as a request identifier; use [ID.IsValid] to
// check.
type ID struct {
	value any // string, int64, or nil
}

// MakeID constructs an ID from a string or an integer value.
func MakeID[T string | int | int32 | int64](v T) ID {
	switch v := any(v).(type) {
	case string:
		return ID{value: v}
	case int:
		return ID{value: int64(v)}
	case int32:
		return ID{value: int64(v)}
	case int64:
		return ID{value: v}
	}
	panic("unreachable")
}

// IsValid reports whether the ID holds a value.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying value of the ID: a string, an int64, or nil.
func (id ID) Raw() any { return id.value }

func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements [json.Marshaler].
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements [json.Unmarshaler].
func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		id.value = nil
	case string:
		id.value = v
	case float64:
		if v != float64(int64(v)) {
			return fmt.Errorf("jsonrpc: non-integral ID %v", v)
		}
		id.value = int64(v)
	default:
		return fmt.Errorf("jsonrpc: invalid ID type %T", v)
	}
	return nil
}

// Standard JSON-RPC error codes, as defined by the JSON-RPC 2.0
// specification. MCP-specific codes begin at -32000.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeResourceNotFound is the MCP-defined code for a missing resource.
	CodeResourceNotFound = -32002
)

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError returns an *Error with the given code and message.
func NewError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Message is implemented by [Request] and [Response]. It is the type
// transported by a [Connection].
type Message interface {
	// isJSONRPCMessage is unexported, so only Request and Response (and
	// types that embed them) implement Message.
	isJSONRPCMessage()
}

// Request is a JSON-RPC request or notification. A request has a valid ID;
// a notification's ID is the zero ID.
type Request struct {
	ID     ID              `json:"id,omitzero"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) isJSONRPCMessage() {}

// IsCall reports whether the request expects a response.
func (r *Request) IsCall() bool { return r.ID.IsValid() }

// Response is a JSON-RPC response.
//
// Exactly one of Result and Error is set.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (*Response) isJSONRPCMessage() {}
