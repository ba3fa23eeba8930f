// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Result is implemented by every value a [MethodHandler] may return.
// [*CallToolResult] is the only built-in implementation; callers
// registering their own methods may define additional result types.
type Result interface {
	isResult()
}

func (*CallToolResult) isResult() {}

// MethodHandler answers one JSON-RPC method call. It receives the decoded
// request (carrying the originating [Session]) and returns either a
// [Result] or an error, which is converted to a JSON-RPC error response
// per [jsonrpc2.ToWireError].
type MethodHandler func(ctx context.Context, method string, req Request) (Result, error)

// Middleware wraps a MethodHandler to add cross-cutting behavior (logging,
// tracing, metrics, auth) without the wrapped handler needing to know
// about it. Middleware is applied in the order registered: the first
// added is outermost.
type Middleware func(MethodHandler) MethodHandler

func chainMiddleware(h MethodHandler, mw []Middleware) MethodHandler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Tool describes one opaquely-dispatched operation registered with a
// [Server]. Name identifies the operation (e.g. the tool name carried in
// CallToolParams.Name); InputSchema, if non-nil, is validated against the
// raw arguments before the handler runs.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	resolved *jsonschema.Resolved
}

// ToolHandler handles one named operation. args is the raw JSON payload
// of CallToolParams.Arguments; it has already been validated against
// Tool.InputSchema, if one was supplied.
type ToolHandler func(ctx context.Context, req *ServerRequest[*CallToolParams], args json.RawMessage) (*CallToolResult, error)

type serverTool struct {
	tool    *Tool
	handler ToolHandler
}

func newServerTool(t *Tool, h ToolHandler) (*serverTool, error) {
	if t.InputSchema != nil {
		resolved, err := t.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return nil, fmt.Errorf("resolving input schema for %q: %w", t.Name, err)
		}
		t.resolved = resolved
	}
	return &serverTool{tool: t, handler: h}, nil
}

func (st *serverTool) validate(args json.RawMessage) error {
	if st.tool.resolved == nil {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	if err := st.tool.resolved.Validate(v); err != nil {
		return fmt.Errorf("validating arguments against schema for %q: %w", st.tool.Name, err)
	}
	return nil
}

// AddTool registers a named operation dispatched through the tools/call
// method, the way the original SDK's AddTool does, minus the
// generic-typed-handler and output-schema machinery this implementation
// does not need for opaque dispatch.
func AddTool(s *Server, t *Tool, h ToolHandler) {
	st, err := newServerTool(t, h)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Name] = st
}
