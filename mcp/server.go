// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/corerpc/mcp/internal/jsonrpc2"
)

// ProtocolVersion is the latest MCP protocol revision this module speaks.
const ProtocolVersion = "2025-06-18"

// ServerOptions configures a [Server].
type ServerOptions struct {
	// Instructions is returned to the client in InitializeResult, as a hint
	// to the model about how to use the server.
	Instructions string
	// PageSize bounds the number of entries tasks/list returns per call.
	PageSize int
	// KeepAlive, if positive, causes the server to ping each session on
	// this interval after initialization, closing the session if a ping
	// goes unanswered.
	KeepAlive time.Duration
	// TaskTTL bounds how long a completed task's result remains
	// retrievable when the client does not specify its own TTL.
	TaskTTL time.Duration
	// EnableTasks advertises the long-running task lifecycle capability.
	EnableTasks bool
	// SessionStore persists session records for the streamable HTTP
	// transport. Defaults to [NewMemorySessionStore].
	SessionStore SessionStore
	// EventStore persists SSE stream events for resumable reads. Defaults
	// to [NewMemoryEventStore].
	EventStore EventStore
}

// Server is the MCP-level entry point: it exposes tools to any number of
// connected clients, one [ServerSession] per connection.
type Server struct {
	impl *Implementation
	opts ServerOptions

	mu       sync.Mutex
	tools    map[string]*serverTool
	sessions map[string]*ServerSession

	tasks      *serverTasks
	middleware []Middleware

	sessionStore SessionStore
	eventStore   EventStore
}

// NewServer creates a Server that identifies itself to clients as impl. A
// nil opts is equivalent to a zero ServerOptions.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	o := ServerOptions{}
	if opts != nil {
		o = *opts
	}
	sessionStore := o.SessionStore
	if sessionStore == nil {
		sessionStore = NewMemorySessionStore(0)
	}
	eventStore := o.EventStore
	if eventStore == nil {
		eventStore = NewMemoryEventStore()
	}
	return &Server{
		impl:         impl,
		opts:         o,
		tools:        make(map[string]*serverTool),
		sessions:     make(map[string]*ServerSession),
		tasks:        newServerTasks(o.TaskTTL, o.PageSize),
		sessionStore: sessionStore,
		eventStore:   eventStore,
	}
}

// AddReceivingMiddleware appends middleware applied, in order, to every
// method call received by every session of s. The first added is
// outermost.
func (s *Server) AddReceivingMiddleware(mw ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw...)
}

func (s *Server) capabilities() *ServerCapabilities {
	caps := &ServerCapabilities{Logging: map[string]any{}}
	if s.opts.EnableTasks {
		caps.Tasks = &TasksCapability{}
	}
	return caps
}

// Connect binds a freshly-accepted [Connection] to a new [ServerSession]
// and starts serving requests on it, the way the original SDK's
// Server.Connect does for a stdio-style transport. [StreamableHTTPHandler]
// calls Connect once per logical session, with that session's
// [StreamableServerTransport]; see streamable.go.
func (s *Server) Connect(ctx context.Context, t Transport) (*ServerSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return s.newSession(conn)
}

func (s *Server) newSession(conn Connection) (*ServerSession, error) {
	id := conn.SessionID()
	ss := &ServerSession{
		server:   s,
		p:        newPeer("server"),
		id:       id,
		logLevel: LoggingLevelInfo,
	}
	ss.p.handler = chainMiddleware(ss.handle, s.middlewareSnapshot())
	ss.p.notifyFunc = ss.handleNotification
	if err := ss.p.connect(conn); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[id] = ss
	s.mu.Unlock()
	return ss, nil
}

func (s *Server) middlewareSnapshot() []Middleware {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Middleware(nil), s.middleware...)
}

// ServerSession is one client connection to a [Server].
type ServerSession struct {
	server *Server
	p      *peer
	id     string

	mu                 sync.Mutex
	initialized        bool
	clientCapabilities *ClientCapabilities
	clientInfo         *Implementation
	logLevel           LoggingLevel
	keepaliveCancel    context.CancelFunc
}

// ID implements [Session].
func (ss *ServerSession) ID() string { return ss.id }

// NotifyProgress sends a progress notification for an in-flight call this
// session initiated handling of, identified by token (the value the
// caller stamped into _meta.progressToken).
func (ss *ServerSession) NotifyProgress(ctx context.Context, p *ProgressNotificationParams) error {
	return ss.p.notify(ctx, "notifications/progress", p)
}

// Log sends a logging/message notification if level meets the session's
// configured minimum.
func (ss *ServerSession) Log(ctx context.Context, level LoggingLevel, logger string, data any) error {
	ss.mu.Lock()
	min := ss.logLevel
	ss.mu.Unlock()
	if severityRank(level) < severityRank(min) {
		return nil
	}
	return ss.p.notify(ctx, "notifications/message", &LoggingMessageParams{Level: level, Logger: logger, Data: data})
}

var loggingSeverity = map[LoggingLevel]int{
	LoggingLevelDebug: 0, LoggingLevelInfo: 1, LoggingLevelNotice: 2, LoggingLevelWarning: 3,
	LoggingLevelError: 4, LoggingLevelCritical: 5, LoggingLevelAlert: 6, LoggingLevelEmergency: 7,
}

func severityRank(l LoggingLevel) int { return loggingSeverity[l] }

// Close terminates the session's connection and removes it from its
// server.
func (ss *ServerSession) Close() error {
	ss.mu.Lock()
	if ss.keepaliveCancel != nil {
		ss.keepaliveCancel()
	}
	ss.mu.Unlock()
	ss.server.mu.Lock()
	delete(ss.server.sessions, ss.id)
	ss.server.mu.Unlock()
	return ss.p.close()
}

func (ss *ServerSession) handleNotification(ctx context.Context, method string, params Params) {
	switch method {
	case "notifications/initialized":
		ss.mu.Lock()
		ss.initialized = true
		kaInterval := ss.server.opts.KeepAlive
		ss.mu.Unlock()
		if kaInterval > 0 {
			ss.startKeepalive(kaInterval)
		}
	case "notifications/roots/list_changed", "notifications/progress":
		// No server-side bookkeeping beyond what peer.go already does.
	}
}

func (ss *ServerSession) startKeepalive(interval time.Duration) {
	kaCtx, cancel := context.WithCancel(context.Background())
	ss.mu.Lock()
	ss.keepaliveCancel = cancel
	ss.mu.Unlock()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-t.C:
				if _, err := ss.p.request(kaCtx, "ping", &PingParams{}, requestOpts{TimeoutMs: interval.Milliseconds()}); err != nil {
					ss.Close()
					return
				}
			}
		}
	}()
}

// handle is ss's [MethodHandler], wrapped by the server's receiving
// middleware chain before being installed on ss.p.
func (ss *ServerSession) handle(ctx context.Context, method string, req Request) (Result, error) {
	rr, ok := req.(rawRequest)
	if !ok {
		return nil, fmt.Errorf("%w: malformed request", jsonrpc2.ErrInternal)
	}
	switch method {
	case "initialize":
		return ss.initialize(ctx, rr.params)
	case "ping":
		return &pingResult{}, nil
	case "logging/setLevel":
		var p SetLoggingLevelParams
		if err := json.Unmarshal(rr.params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
		}
		ss.mu.Lock()
		ss.logLevel = p.Level
		ss.mu.Unlock()
		return &emptyResult{}, nil
	case "tools/call":
		return ss.callTool(ctx, rr.params)
	case "tasks/get":
		return ss.getTask(rr.params)
	case "tasks/list":
		return ss.listTasks(rr.params)
	case "tasks/cancel":
		return ss.cancelTask(ctx, rr.params)
	case "tasks/result":
		return ss.taskResult(rr.params)
	default:
		return nil, fmt.Errorf("%w: %s", jsonrpc2.ErrMethodNotFound, method)
	}
}

// pingResult and emptyResult answer methods whose result is "{}".
type pingResult struct{}

func (*pingResult) isResult() {}

type emptyResult struct{}

func (*emptyResult) isResult() {}

func (ss *ServerSession) initialize(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p InitializeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	ss.mu.Lock()
	ss.clientCapabilities = p.Capabilities
	ss.clientInfo = p.ClientInfo
	ss.mu.Unlock()

	version := p.ProtocolVersion
	if version == "" {
		version = ProtocolVersion
	}
	return &InitializeResult{
		Capabilities:    ss.server.capabilities(),
		Instructions:    ss.server.opts.Instructions,
		ProtocolVersion: version,
		ServerInfo:      ss.server.impl,
	}, nil
}

func (ss *ServerSession) callTool(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p CallToolParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	ss.server.mu.Lock()
	st, ok := ss.server.tools[p.Name]
	ss.server.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", jsonrpc2.ErrInvalidParams, p.Name)
	}
	if err := st.validate(p.Arguments); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}

	if p.Task == nil || !ss.server.opts.EnableTasks {
		return ss.runToolNow(ctx, st, &p)
	}
	return ss.runToolAsTask(st, &p)
}

func (ss *ServerSession) runToolNow(ctx context.Context, st *serverTool, p *CallToolParams) (*CallToolResult, error) {
	res, err := st.handler(ctx, &ServerRequest[*CallToolParams]{Session: ss, Params: p}, p.Arguments)
	if err == nil && res != nil && res.Content == nil {
		res.Content = []Content{}
	}
	return res, err
}

func (ss *ServerSession) runToolAsTask(st *serverTool, p *CallToolParams) (Result, error) {
	entry, err := ss.server.tasks.create(ss, st.tool.Name, p.GetMeta(), p.Arguments, p.Task)
	if err != nil {
		return nil, err
	}
	go func() {
		defer func() {
			select {
			case <-entry.done:
			default:
				close(entry.done)
			}
		}()
		taskCtx, cancel := context.WithCancel(context.Background())
		ss.server.tasks.setCancel(entry, cancel)
		defer cancel()
		res, runErr := ss.runToolNow(taskCtx, st, p)
		ss.server.tasks.finish(entry, res, runErr, func(t Task) {
			tp := TaskStatusNotificationParams(t)
			_ = ss.p.notify(context.Background(), methodTaskStatus, &tp)
		})
	}()
	t := entry.task
	return (*GetTaskResult)(&t), nil
}

func (ss *ServerSession) getTask(raw json.RawMessage) (Result, error) {
	var p GetTaskParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	e, err := ss.server.tasks.get(ss, p.TaskID)
	if err != nil {
		return nil, err
	}
	t := e.task
	return (*GetTaskResult)(&t), nil
}

func (ss *ServerSession) listTasks(raw json.RawMessage) (Result, error) {
	var p ListTasksParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
		}
	}
	return ss.server.tasks.page(ss, p.Cursor)
}

func (ss *ServerSession) cancelTask(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p CancelTaskParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	t, err := ss.server.tasks.cancel(ss, p.TaskID)
	if err != nil {
		return nil, err
	}
	return (*CancelTaskResult)(&t), nil
}

func (ss *ServerSession) taskResult(raw json.RawMessage) (Result, error) {
	var p TaskResultParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	e, err := ss.server.tasks.get(ss, p.TaskID)
	if err != nil {
		return nil, err
	}
	<-e.done
	ss.server.tasks.mu.Lock()
	cur := ss.server.tasks.tasks[p.TaskID]
	res, taskErr := cur.result, cur.err
	ss.server.tasks.mu.Unlock()
	if taskErr != nil {
		return nil, taskErr
	}
	if res == nil {
		res = &CallToolResult{Content: []Content{}}
	}
	return res, nil
}
