// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "github.com/corerpc/mcp/jsonrpc"

// JSONRPCMessage, JSONRPCID, JSONRPCRequest, JSONRPCResponse, and
// JSONRPCError are the wire types exchanged over a [Connection]. They
// alias the public jsonrpc package so that transports (which must
// encode/decode them) and handlers (which only ever see mcp-level types)
// agree on a single representation.
type (
	JSONRPCMessage  = jsonrpc.Message
	JSONRPCID       = jsonrpc.ID
	JSONRPCRequest  = jsonrpc.Request
	JSONRPCResponse = jsonrpc.Response
	JSONRPCError    = jsonrpc.Error
)
