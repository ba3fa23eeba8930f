// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corerpc/mcp/internal/jsonrpc2"
	"github.com/corerpc/mcp/jsonrpc"
)

// ErrConnectionClosed is returned by in-flight requests when the
// connection closes before a response arrives, and by Request/Notify
// after Close.
var ErrConnectionClosed = errors.New("mcp: connection closed")

// ErrAlreadyConnected is returned by peer.connect when a connection is
// already attached.
var ErrAlreadyConnected = errors.New("mcp: already connected")

// requestOpts configures an outbound request, per §4.2.
type requestOpts struct {
	TimeoutMs              int64
	MaxTotalTimeoutMs      int64
	ResetTimeoutOnProgress bool
	OnProgress             func(ProgressNotificationParams)
	RelatedRequestID       JSONRPCID
}

// inFlightRequest is the sender-side record of §3's "In-flight request".
type inFlightRequest struct {
	maxDeadline time.Time
	onProgress  func(ProgressNotificationParams)
	progress    chan struct{} // signalled (non-blocking) on each routed progress notification
	cancel      context.CancelFunc
	resultCh    chan rpcResult
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

// peer is the symmetric protocol engine described in §4.2: it is shared
// by [ClientSession] and [ServerSession], which differ only in which
// handlers they register and which params types they decode.
type peer struct {
	name string // "client" or "server", for error messages

	mu       sync.Mutex
	conn     Connection
	nextID   atomic.Int64
	inFlight map[int64]*inFlightRequest // keyed by the integer id this peer assigned

	cancelFuncs map[string]context.CancelFunc // receiver-side: request id (string form) -> handler cancel

	handler      MethodHandler
	notifyFunc   func(ctx context.Context, method string, params Params)

	closed    chan struct{}
	closeOnce sync.Once
}

func newPeer(name string) *peer {
	return &peer{
		name:        name,
		inFlight:    make(map[int64]*inFlightRequest),
		cancelFuncs: make(map[string]context.CancelFunc),
		closed:      make(chan struct{}),
	}
}

// connect attaches conn and starts the read loop. It must be called at
// most once unless close has since been called.
func (p *peer) connect(conn Connection) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.conn = conn
	p.closed = make(chan struct{})
	p.mu.Unlock()

	go p.readLoop(conn)
	return nil
}

func (p *peer) readLoop(conn Connection) {
	ctx := context.Background()
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			p.closeWithError(err)
			return
		}
		switch m := msg.(type) {
		case *jsonrpc.Response:
			p.deliverResponse(m)
		case *jsonrpc.Request:
			if m.IsCall() {
				go p.handleCall(conn, m)
			} else {
				p.handleNotification(m)
			}
		}
	}
}

func (p *peer) deliverResponse(resp *jsonrpc.Response) {
	id, ok := resp.ID.Raw().(int64)
	if !ok {
		return
	}
	p.mu.Lock()
	req, ok := p.inFlight[id]
	if ok {
		delete(p.inFlight, id)
	}
	p.mu.Unlock()
	if !ok {
		// Boundary behavior: a late response for a request whose record
		// was already removed (timeout/cancel) is discarded.
		return
	}
	if req.cancel != nil {
		req.cancel()
	}
	if resp.Error != nil {
		req.resultCh <- rpcResult{err: resp.Error}
	} else {
		req.resultCh <- rpcResult{result: resp.Result}
	}
}

func (p *peer) handleNotification(n *jsonrpc.Request) {
	ctx := context.Background()
	switch n.Method {
	case "notifications/cancelled":
		var params CancelledParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			return
		}
		p.cancelIncoming(fmt.Sprint(params.RequestID))
		return
	case "notifications/progress":
		var params ProgressNotificationParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			return
		}
		p.routeProgress(params)
		return
	}
	if p.notifyFunc != nil {
		p.notifyFunc(ctx, n.Method, rawParams(n.Params))
	}
}

func (p *peer) routeProgress(params ProgressNotificationParams) {
	tok, ok := params.ProgressToken.(string)
	if !ok {
		if n, ok := params.ProgressToken.(float64); ok {
			tok = fmt.Sprintf("%d", int64(n))
		} else {
			return
		}
	}
	var id int64
	if _, err := fmt.Sscanf(tok, "%d", &id); err != nil {
		return // Silently dropped: no corresponding in-flight id.
	}
	p.mu.Lock()
	req, ok := p.inFlight[id]
	p.mu.Unlock()
	if !ok || req.onProgress == nil {
		return
	}
	req.onProgress(params)
	select {
	case req.progress <- struct{}{}:
	default:
		// A reset is already pending for request(); coalescing is fine,
		// since the timer only needs to know "progress arrived since the
		// last check", not how many times.
	}
}

func (p *peer) cancelIncoming(requestID string) {
	p.mu.Lock()
	cancel, ok := p.cancelFuncs[requestID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// handleCall answers one incoming JSON-RPC request, per the five steps of
// §4.2's "Handler dispatch".
func (p *peer) handleCall(conn Connection, req *jsonrpc.Request) {
	reqIDStr := req.ID.String()
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancelFuncs[reqIDStr] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancelFuncs, reqIDStr)
		p.mu.Unlock()
		cancel()
	}()

	ctx = context.WithValue(ctx, idContextKey{}, req.ID)

	if p.handler == nil {
		p.reply(conn, req.ID, nil, jsonrpc2.ToWireError(fmt.Errorf("%w: %s", jsonrpc2.ErrMethodNotFound, req.Method)))
		return
	}
	result, err := p.handler(ctx, req.Method, rawRequest{method: req.Method, params: req.Params, peer: p})
	if err != nil {
		p.reply(conn, req.ID, nil, jsonrpc2.ToWireError(err))
		return
	}
	data, merr := json.Marshal(result)
	if merr != nil {
		p.reply(conn, req.ID, nil, jsonrpc2.ToWireError(fmt.Errorf("%w: %v", jsonrpc2.ErrInternal, merr)))
		return
	}
	p.reply(conn, req.ID, data, nil)
}

func (p *peer) reply(conn Connection, id JSONRPCID, result json.RawMessage, err *jsonrpc.Error) {
	resp := &jsonrpc.Response{ID: id, Result: result, Error: err}
	ctx := context.WithValue(context.Background(), idContextKey{}, id)
	_ = conn.Write(ctx, resp)
}

// idContextKey is the context key under which the originating request id
// is stored, so that server-initiated sends during handling can be
// attributed to the right logical stream (see streamable.go).
type idContextKey struct{}

// request sends req and blocks for its result, implementing the
// Pending → {Resolved | Rejected | Cancelled | TimedOut} state machine of
// §4.2.
func (p *peer) request(ctx context.Context, method string, params Params, opts requestOpts) (json.RawMessage, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil, ErrConnectionClosed
	}

	id := p.nextID.Add(1)
	if opts.OnProgress != nil {
		params.SetProgressToken(fmt.Sprintf("%d", id))
	}
	paramsData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	ifr := &inFlightRequest{
		onProgress: opts.OnProgress,
		progress:   make(chan struct{}, 1),
		cancel:     cancel,
		resultCh:   make(chan rpcResult, 1),
	}
	if opts.MaxTotalTimeoutMs > 0 {
		ifr.maxDeadline = now.Add(time.Duration(opts.MaxTotalTimeoutMs) * time.Millisecond)
	}

	p.mu.Lock()
	p.inFlight[id] = ifr
	p.mu.Unlock()

	removeRecord := func() {
		p.mu.Lock()
		delete(p.inFlight, id)
		p.mu.Unlock()
	}

	wireReq := &jsonrpc.Request{ID: jsonrpc.MakeID(id), Method: method, Params: paramsData}
	if err := conn.Write(ctx, wireReq); err != nil {
		removeRecord()
		cancel()
		return nil, err
	}

	var timerC <-chan time.Time
	var timer *time.Timer
	var timeoutDur time.Duration
	if opts.TimeoutMs > 0 {
		timeoutDur = time.Duration(opts.TimeoutMs) * time.Millisecond
		timer = time.NewTimer(timeoutDur)
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case res := <-ifr.resultCh:
			if res.err != nil {
				return nil, res.err
			}
			return res.result, nil
		case <-reqCtx.Done():
			removeRecord()
			p.cancelOutbound(ctx, id, "context cancelled")
			return nil, reqCtx.Err()
		case <-ifr.progress:
			// A progress notification arrived for this request: per §4.2,
			// reset the deadline, but never past maxDeadline.
			if opts.ResetTimeoutOnProgress && timer != nil {
				if ifr.maxDeadline.IsZero() || time.Now().Before(ifr.maxDeadline) {
					d := timeoutDur
					if !ifr.maxDeadline.IsZero() {
						if remaining := time.Until(ifr.maxDeadline); remaining < d {
							d = remaining
						}
					}
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(d)
				}
			}
			continue
		case <-timerC:
			removeRecord()
			p.cancelOutbound(ctx, id, "deadline exceeded")
			return nil, context.DeadlineExceeded
		case <-p.closed:
			removeRecord()
			return nil, ErrConnectionClosed
		}
	}
}

// cancelOutbound removes the in-flight record (already done by caller)
// and best-effort notifies the peer, per §4.2's cancellation sequence.
func (p *peer) cancelOutbound(ctx context.Context, id int64, reason string) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	params := &CancelledParams{RequestID: id, Reason: reason}
	data, err := json.Marshal(params)
	if err != nil {
		return
	}
	n := &jsonrpc.Request{Method: "notifications/cancelled", Params: data}
	_ = conn.Write(ctx, n) // best-effort; ignored if transport closed
}

// notify sends a fire-and-forget notification.
func (p *peer) notify(ctx context.Context, method string, params Params) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrConnectionClosed
	}
	var data json.RawMessage
	if params != nil {
		d, err := json.Marshal(params)
		if err != nil {
			return err
		}
		data = d
	}
	return conn.Write(ctx, &jsonrpc.Request{Method: method, Params: data})
}

// close cancels every in-flight request with ErrConnectionClosed and
// disconnects the transport.
func (p *peer) close() error {
	p.mu.Lock()
	conn := p.conn
	inFlight := p.inFlight
	p.inFlight = make(map[int64]*inFlightRequest)
	p.conn = nil
	p.mu.Unlock()

	p.closeOnce.Do(func() { close(p.closed) })
	for _, ifr := range inFlight {
		ifr.resultCh <- rpcResult{err: ErrConnectionClosed}
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (p *peer) closeWithError(err error) {
	_ = p.close()
}

// connectionSessionID returns the transport session id of p's current
// connection, or "" if unconnected.
func (p *peer) connectionSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ""
	}
	return p.conn.SessionID()
}

// rawParams lets the protocol engine hand a notification's undecoded
// params through to a notification listener without importing a cyclic
// dependency on a concrete params type.
type rawParams json.RawMessage

func (rawParams) isParams()             {}
func (rawParams) GetProgressToken() any { return nil }
func (rawParams) SetProgressToken(any)  {}
func (rawParams) GetMeta() Meta         { return nil }

// rawRequest adapts an incoming call to the [Request] interface before
// the concrete [*ServerSession] or [*ClientSession] owning this peer is
// known to the generic dispatch path; Server/Client unwrap it to recover
// method/params and attach the concrete session.
type rawRequest struct {
	method string
	params json.RawMessage
	peer   *peer
}

func (r rawRequest) GetSession() Session { return nil }
