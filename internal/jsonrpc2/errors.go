// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"errors"

	"github.com/corerpc/mcp/jsonrpc"
)

// Sentinel errors returned by handlers and recognized by the dispatch loop
// in package mcp. A handler that returns one of these (possibly wrapped)
// causes the corresponding JSON-RPC error code to be sent on the wire; any
// other error is reported as CodeInternalError.
var (
	ErrParse         = errors.New("parse error")
	ErrInvalidRequest = errors.New("invalid request")
	ErrMethodNotFound = errors.New("method not found")
	ErrInvalidParams  = errors.New("invalid params")
	ErrInternal       = errors.New("internal error")
)

// ToWireError converts err into a *jsonrpc.Error suitable for sending on
// the wire, mapping the sentinels above to their standard codes. If err is
// already a *jsonrpc.Error it is returned unchanged.
func ToWireError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	code := int64(jsonrpc.CodeInternalError)
	switch {
	case errors.Is(err, ErrParse):
		code = jsonrpc.CodeParseError
	case errors.Is(err, ErrInvalidRequest):
		code = jsonrpc.CodeInvalidRequest
	case errors.Is(err, ErrMethodNotFound):
		code = jsonrpc.CodeMethodNotFound
	case errors.Is(err, ErrInvalidParams):
		code = jsonrpc.CodeInvalidParams
	}
	return &jsonrpc.Error{Code: code, Message: err.Error()}
}
