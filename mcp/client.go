// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ClientOptions configures a [Client].
type ClientOptions struct {
	// Capabilities advertised to the server during initialize. A nil value
	// advertises no capabilities.
	Capabilities *ClientCapabilities
	// ProgressHandler is not invoked by the client: progress notifications
	// are routed only to the per-call callback given to
	// CallToolWithProgress.
	ProgressHandler func(ctx context.Context, p *ProgressNotificationParams)
	// LoggingMessageHandler, if set, receives the server's
	// notifications/message notifications.
	LoggingMessageHandler func(ctx context.Context, p *LoggingMessageParams)
	// TaskStatusHandler, if set, receives the server's task-status push
	// notifications.
	TaskStatusHandler func(ctx context.Context, t *Task)
	// Middleware is stored with the client but not applied: no request,
	// response or notification handled by the client passes through it.
	Middleware []Middleware
}

// Client is the MCP client side of one or more connections to servers.
type Client struct {
	impl *Implementation
	opts ClientOptions
}

// NewClient creates a Client that identifies itself to servers as impl. A
// nil opts is equivalent to a zero ClientOptions.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	o := ClientOptions{}
	if opts != nil {
		o = *opts
	}
	return &Client{impl: impl, opts: o}
}

// ClientSession is one client-to-server connection, after a completed
// initialize handshake.
type ClientSession struct {
	client *Client
	p      *peer

	mu                 sync.Mutex
	serverCapabilities *ServerCapabilities
	serverInfo         *Implementation
	protocolVersion    string
}

// ID implements [Session]. The streamable HTTP transport assigns the
// session id; other transports report "".
func (cs *ClientSession) ID() string { return cs.p.connectionSessionID() }

// ServerCapabilities returns the capabilities the server reported during
// initialize.
func (cs *ClientSession) ServerCapabilities() *ServerCapabilities {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.serverCapabilities
}

// Close terminates the session's connection.
func (cs *ClientSession) Close() error { return cs.p.close() }

// Connect opens a connection over t and performs the initialize handshake
// described in §4.2, blocking until the server responds.
func (c *Client) Connect(ctx context.Context, t Transport) (*ClientSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, err
	}
	cs := &ClientSession{client: c, p: newPeer("client")}
	cs.p.notifyFunc = cs.handleNotification
	if err := cs.p.connect(conn); err != nil {
		return nil, err
	}

	initParams := &InitializeParams{
		Capabilities:    c.opts.Capabilities,
		ClientInfo:      c.impl,
		ProtocolVersion: ProtocolVersion,
	}
	raw, err := cs.p.request(ctx, "initialize", initParams, requestOpts{})
	if err != nil {
		cs.p.close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		cs.p.close()
		return nil, fmt.Errorf("initialize: decoding result: %w", err)
	}
	cs.mu.Lock()
	cs.serverCapabilities = result.Capabilities
	cs.serverInfo = result.ServerInfo
	cs.protocolVersion = result.ProtocolVersion
	cs.mu.Unlock()

	if err := cs.p.notify(ctx, "notifications/initialized", &InitializedParams{}); err != nil {
		cs.p.close()
		return nil, fmt.Errorf("initialized: %w", err)
	}
	return cs, nil
}

// CallTool invokes a tool by name and decodes its result.
func (cs *ClientSession) CallTool(ctx context.Context, name string, args any) (*CallToolResult, error) {
	argsData, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	params := &CallToolParams{Name: name, Arguments: argsData}
	raw, err := cs.p.request(ctx, "tools/call", params, requestOpts{})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := result.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallToolWithProgress is like CallTool but invokes onProgress for every
// progress notification the server sends for this call.
func (cs *ClientSession) CallToolWithProgress(ctx context.Context, name string, args any, onProgress func(ProgressNotificationParams)) (*CallToolResult, error) {
	argsData, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	params := &CallToolParams{Name: name, Arguments: argsData}
	raw, err := cs.p.request(ctx, "tools/call", params, requestOpts{OnProgress: onProgress})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := result.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask polls the current state of a long-running task.
func (cs *ClientSession) GetTask(ctx context.Context, taskID string) (*Task, error) {
	raw, err := cs.p.request(ctx, "tasks/get", &GetTaskParams{TaskID: taskID}, requestOpts{})
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelTask requests cancellation of a long-running task.
func (cs *ClientSession) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	raw, err := cs.p.request(ctx, "tasks/cancel", &CancelTaskParams{TaskID: taskID}, requestOpts{})
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TaskResult blocks until a task finishes and returns its result.
func (cs *ClientSession) TaskResult(ctx context.Context, taskID string) (*CallToolResult, error) {
	raw, err := cs.p.request(ctx, "tasks/result", &TaskResultParams{TaskID: taskID}, requestOpts{})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := result.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetLoggingLevel requests a minimum severity for subsequent
// notifications/message notifications.
func (cs *ClientSession) SetLoggingLevel(ctx context.Context, level LoggingLevel) error {
	_, err := cs.p.request(ctx, "logging/setLevel", &SetLoggingLevelParams{Level: level}, requestOpts{})
	return err
}

func (cs *ClientSession) handleNotification(ctx context.Context, method string, params Params) {
	switch method {
	case "notifications/message":
		if cs.client.opts.LoggingMessageHandler == nil {
			return
		}
		raw, ok := params.(rawParams)
		if !ok {
			return
		}
		var p LoggingMessageParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		cs.client.opts.LoggingMessageHandler(ctx, &p)
	case methodTaskStatus:
		if cs.client.opts.TaskStatusHandler == nil {
			return
		}
		raw, ok := params.(rawParams)
		if !ok {
			return
		}
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return
		}
		cs.client.opts.TaskStatusHandler(ctx, &t)
	}
}
