// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 implements the low-level JSON-RPC 2.0 wire encoding used
// by the mcp package's protocol engine, along with the strict-unmarshalling
// guard used to reject request-smuggling attempts.
package jsonrpc2

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/corerpc/mcp/jsonrpc"
)

const protocolVersion = "2.0"

// wireEnvelope is the on-the-wire shape of every JSON-RPC 2.0 message. Both
// requests and responses are decoded into it so the decoder can determine
// which one it has received before unmarshalling into the public type.
type wireEnvelope struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *jsonrpc.ID       `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.Error    `json:"error,omitempty"`
}

// EncodeMessage marshals msg (a *jsonrpc.Request or *jsonrpc.Response) into
// its wire representation.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	switch msg := msg.(type) {
	case *jsonrpc.Request:
		env := wireEnvelope{JSONRPC: protocolVersion, Method: msg.Method, Params: json.RawMessage(msg.Params)}
		if msg.ID.IsValid() {
			id := msg.ID
			env.ID = &id
		}
		return json.Marshal(env)
	case *jsonrpc.Response:
		env := wireEnvelope{JSONRPC: protocolVersion, ID: &msg.ID, Result: json.RawMessage(msg.Result), Error: msg.Error}
		return json.Marshal(env)
	default:
		return nil, fmt.Errorf("jsonrpc2: unsupported message type %T", msg)
	}
}

// DecodeMessage unmarshals a single JSON-RPC message (request or response)
// from the wire. Batched arrays are not supported, matching the MCP
// 2025-06-18 transport, which removed batching from the prior revision.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	var env wireEnvelope
	if err := StrictUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("jsonrpc2: decode: %w", err)
	}
	if env.JSONRPC != protocolVersion {
		return nil, fmt.Errorf("jsonrpc2: missing or invalid %q field", "jsonrpc")
	}
	switch {
	case env.Method != "":
		req := &jsonrpc.Request{Method: env.Method, Params: env.Params}
		if env.ID != nil {
			req.ID = *env.ID
		}
		return req, nil
	case env.ID != nil:
		return &jsonrpc.Response{ID: *env.ID, Result: env.Result, Error: env.Error}, nil
	default:
		return nil, fmt.Errorf("jsonrpc2: message has neither method nor id")
	}
}
