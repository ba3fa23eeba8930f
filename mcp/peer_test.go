// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/corerpc/mcp/jsonrpc"
)

// TestRequestResetTimeoutOnProgress exercises §4.2's "each received
// progress notification... resets the deadline": a short TimeoutMs would
// fire well before the responder replies, but a steady drip of progress
// notifications should keep extending the deadline up to MaxTotalTimeoutMs.
func TestRequestResetTimeoutOnProgress(t *testing.T) {
	clientTransport, serverTransport := NewInMemoryTransports()

	p := newPeer("client")
	conn, err := clientTransport.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := p.connect(conn); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer p.close()

	serverConn, err := serverTransport.Connect(context.Background())
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}

	// Act as the responder: read the request, drip four progress
	// notifications spaced past the 40ms TimeoutMs but well inside the
	// 500ms MaxTotalTimeoutMs, then reply.
	go func() {
		req, err := serverConn.Read(context.Background())
		if err != nil {
			return
		}
		jreq, ok := req.(*jsonrpc.Request)
		if !ok {
			return
		}
		for i := 0; i < 4; i++ {
			time.Sleep(25 * time.Millisecond)
			params, _ := json.Marshal(&ProgressNotificationParams{
				ProgressToken: "1",
				Progress:      float64(i + 1),
			})
			n := &jsonrpc.Request{Method: "notifications/progress", Params: params}
			_ = serverConn.Write(context.Background(), n)
		}
		resp := &jsonrpc.Response{ID: jreq.ID, Result: json.RawMessage("{}")}
		_ = serverConn.Write(context.Background(), resp)
	}()

	var progressCount int
	_, err = p.request(context.Background(), "ping", &PingParams{}, requestOpts{
		TimeoutMs:              40,
		MaxTotalTimeoutMs:      500,
		ResetTimeoutOnProgress: true,
		OnProgress: func(ProgressNotificationParams) {
			progressCount++
		},
	})
	if err != nil {
		t.Fatalf("request: %v, got %d progress notifications before failing", err, progressCount)
	}
	if progressCount != 4 {
		t.Errorf("progressCount = %d, want 4", progressCount)
	}
}

// TestRequestTimeoutWithoutProgressReset confirms that without any
// progress notifications arriving, a short TimeoutMs still fires even
// when ResetTimeoutOnProgress is set — i.e. the reset is conditioned on
// an actual progress receipt, not an unconditional per-tick extension.
func TestRequestTimeoutWithoutProgressReset(t *testing.T) {
	clientTransport, serverTransport := NewInMemoryTransports()

	p := newPeer("client")
	conn, err := clientTransport.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := p.connect(conn); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer p.close()

	serverConn, err := serverTransport.Connect(context.Background())
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	// Read the request but never answer it and never send progress.
	go func() {
		_, _ = serverConn.Read(context.Background())
	}()

	start := time.Now()
	_, err = p.request(context.Background(), "ping", &PingParams{}, requestOpts{
		TimeoutMs:              30,
		MaxTotalTimeoutMs:      500,
		ResetTimeoutOnProgress: true,
	})
	if err == nil {
		t.Fatalf("request: expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("request took %v, want close to the 30ms timeout (no progress arrived to justify an extension)", elapsed)
	}
}
