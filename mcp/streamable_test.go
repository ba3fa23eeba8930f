// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/corerpc/mcp/internal/jsonrpc2"
)

func TestStreamableTransports(t *testing.T) {
	// This test checks that the streamable server and client transports can
	// communicate over a real HTTP connection, including that cookies set on
	// a custom *http.Client are honored by every request the transport makes.

	ctx := context.Background()

	server := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	AddTool(server, &Tool{Name: "greet", Description: "say hi"},
		func(ctx context.Context, req *ServerRequest[*CallToolParams], args json.RawMessage) (*CallToolResult, error) {
			var in struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return &CallToolResult{Content: []Content{&TextContent{Text: "hi " + in.Name}}}, nil
		})

	handler := NewStreamableHTTPHandler(func(req *http.Request) *Server { return server }, nil)
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("test-cookie")
		if err != nil {
			t.Errorf("missing cookie: %v", err)
		} else if cookie.Value != "test-value" {
			t.Errorf("got cookie %q, want %q", cookie.Value, "test-value")
		}
		handler.ServeHTTP(w, r)
	}))
	defer httpServer.Close()
	defer handler.closeAll()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(httpServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "test-cookie", Value: "test-value"}})
	httpClient := &http.Client{Jar: jar}
	transport := NewStreamableClientTransport(httpServer.URL, &StreamableClientTransportOptions{
		HTTPClient: httpClient,
	})
	client := NewClient(&Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, transport)
	if err != nil {
		t.Fatalf("client.Connect() failed: %v", err)
	}
	defer session.Close()

	sid := session.ID()
	if sid == "" {
		t.Error("empty session ID")
	}

	got, err := session.CallTool(ctx, "greet", map[string]any{"name": "streamy"})
	if err != nil {
		t.Fatalf("CallTool() failed: %v", err)
	}
	if g := session.ID(); g != sid {
		t.Errorf("session ID changed across requests: got %q, want %q", g, sid)
	}

	want := []Content{&TextContent{Text: "hi streamy"}}
	if diff := cmp.Diff(want, got.Content, cmp.AllowUnexported(TextContent{})); diff != "" {
		t.Errorf("CallTool() content mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamableServerDeleteWithoutSessionID(t *testing.T) {
	server := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	handler := NewStreamableHTTPHandler(func(*http.Request) *Server { return server }, nil)
	httpServer := httptest.NewServer(handler)
	defer httpServer.Close()
	defer handler.closeAll()

	req, err := http.NewRequest(http.MethodDelete, httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("DELETE without Mcp-Session-Id: got status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestStreamableServerUnsupportedMethod(t *testing.T) {
	server := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	handler := NewStreamableHTTPHandler(func(*http.Request) *Server { return server }, nil)
	httpServer := httptest.NewServer(handler)
	defer httpServer.Close()
	defer handler.closeAll()

	req, err := http.NewRequest(http.MethodPut, httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT: got status %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

// TestEventID checks that formatEventID/parseEventID round-trip, including
// stream keys that themselves contain underscores (the composite
// "<sessionID>_<streamNum>" keys produced by [StreamableServerTransport.streamKey]).
func TestEventID(t *testing.T) {
	tests := []struct {
		streamKey string
		eventID   int64
	}{
		{"sess1_0", 1},
		{"sess1_7", 42},
		{"sess-with-dashes_3_1", 9},
	}
	for _, test := range tests {
		encoded := formatEventID(test.streamKey, test.eventID)
		gotKey, gotID, ok := parseEventID(encoded)
		if !ok || gotKey != test.streamKey || gotID != test.eventID {
			t.Errorf("parseEventID(formatEventID(%q, %d)) = %q, %d, %v; want %q, %d, true",
				test.streamKey, test.eventID, gotKey, gotID, ok, test.streamKey, test.eventID)
		}
	}
	if _, _, ok := parseEventID("missing-separator"); ok {
		t.Error("parseEventID on a value with no underscore: got ok=true, want false")
	}
	if _, _, ok := parseEventID("sess1_notanumber"); ok {
		t.Error("parseEventID with a non-numeric suffix: got ok=true, want false")
	}
}

// TestStreamKeyRoundTrip checks that a session's streamKey/parseStreamKey
// pair agree with each other, and that parseStreamKey rejects keys
// namespaced to a different session (the property that lets one EventStore
// back multiple sessions safely).
func TestStreamKeyRoundTrip(t *testing.T) {
	tr := newStreamableServerTransport("session-123", nil, NewMemoryEventStore())
	for _, id := range []streamID{0, 1, 42} {
		key := tr.streamKey(id)
		got, ok := tr.parseStreamKey(key)
		if !ok || got != id {
			t.Errorf("parseStreamKey(%q) = %v, %v; want %v, true", key, got, ok, id)
		}
	}
	if _, ok := tr.parseStreamKey("other-session_1"); ok {
		t.Error("parseStreamKey accepted a key belonging to a different session")
	}
}

// TestStreamableResumability exercises the resumability scenario of §4.5/§6:
// a tool call that emits a run of notifications on its own logical stream,
// a client that disconnects partway through, and a reconnect carrying
// Last-Event-ID that must replay exactly the missed events before the
// final response, in order, with nothing duplicated.
//
// It drives the [StreamableServerTransport] directly over HTTP, the way a
// real client would, rather than through [StreamableClientTransport], so
// that the test controls exactly when the first request's connection is
// abandoned and what Last-Event-ID the reconnect carries.
func TestStreamableResumability(t *testing.T) {
	const totalNotifications = 10

	server := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	toolStarted := make(chan struct{})
	AddTool(server, &Tool{Name: "notify", Description: "emit a run of notifications"},
		func(ctx context.Context, req *ServerRequest[*CallToolParams], args json.RawMessage) (*CallToolResult, error) {
			close(toolStarted)
			for i := range totalNotifications {
				if err := req.Session.NotifyProgress(ctx, &ProgressNotificationParams{
					Message:  fmt.Sprintf("note-%d", i),
					Progress: float64(i),
				}); err != nil {
					return nil, err
				}
			}
			return &CallToolResult{Content: []Content{&TextContent{Text: "done"}}}, nil
		})

	handler := NewStreamableHTTPHandler(func(*http.Request) *Server { return server }, nil)
	httpServer := httptest.NewServer(handler)
	defer httpServer.Close()
	defer handler.closeAll()

	// 1. initialize.
	sessionID := mustStreamableRequest(t, httpServer.URL, "", &JSONRPCRequest{
		ID:     jsonrpc2.MakeID(int64(1)),
		Method: "initialize",
		Params: mustMarshalJSON(t, &InitializeParams{ProtocolVersion: ProtocolVersion}),
	})
	if sessionID == "" {
		t.Fatal("initialize: got empty Mcp-Session-Id")
	}

	// 2. notifications/initialized.
	if _, err := postStreamable(httpServer.URL, sessionID, &JSONRPCRequest{
		Method: "notifications/initialized",
	}); err != nil {
		t.Fatalf("notifications/initialized: %v", err)
	}

	// 3. tools/call, abandoned after the 4th received SSE event (the
	// priming event plus the first 3 notifications).
	reqCtx, cancelFirst := context.WithCancel(context.Background())
	var lastEventID string
	var firstRunMessages []string
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		postStreamableEvents(reqCtx, httpServer.URL, sessionID, &JSONRPCRequest{
			ID:     jsonrpc2.MakeID(int64(2)),
			Method: "tools/call",
			Params: mustMarshalJSON(t, &CallToolParams{Name: "notify"}),
		}, func(evt event) bool {
			if evt.id != "" {
				lastEventID = evt.id
			}
			if evt.name == "message" {
				if msg, err := jsonrpc2.DecodeMessage(evt.data); err == nil {
					if n, ok := msg.(*JSONRPCRequest); ok && n.Method == "notifications/progress" {
						var p ProgressNotificationParams
						if json.Unmarshal(n.Params, &p) == nil {
							firstRunMessages = append(firstRunMessages, p.Message)
						}
					}
				}
			}
			return len(firstRunMessages) < 3 // stop once we've seen 3 notifications
		})
	}()

	<-toolStarted
	<-firstDone
	cancelFirst()

	if len(firstRunMessages) == 0 {
		t.Fatal("first connection observed no notifications before disconnecting")
	}
	if lastEventID == "" {
		t.Fatal("first connection never saw an event id to resume from")
	}

	// Give the tool handler time to keep running and append its remaining
	// notifications and final response to the durable event log, since the
	// tool's execution is independent of any one HTTP request's lifetime.
	time.Sleep(200 * time.Millisecond)

	// 4. Reconnect with Last-Event-ID, and collect everything replayed.
	var resumedMessages []string
	var gotFinalResponse bool
	getCtx, cancelResume := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelResume()
	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Last-Event-ID", lastEventID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("resume GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume GET: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			break
		}
		if evt.name != "message" {
			continue
		}
		msg, err := jsonrpc2.DecodeMessage(evt.data)
		if err != nil {
			t.Fatalf("decoding replayed event: %v", err)
		}
		switch m := msg.(type) {
		case *JSONRPCRequest:
			if m.Method == "notifications/progress" {
				var p ProgressNotificationParams
				if err := json.Unmarshal(m.Params, &p); err == nil {
					resumedMessages = append(resumedMessages, p.Message)
				}
			}
		case *JSONRPCResponse:
			gotFinalResponse = true
		}
		if gotFinalResponse {
			break
		}
	}

	if !gotFinalResponse {
		t.Error("resumed stream never delivered the tool call's final response")
	}

	allMessages := append(append([]string{}, firstRunMessages...), resumedMessages...)
	want := make([]string, totalNotifications)
	for i := range want {
		want[i] = fmt.Sprintf("note-%d", i)
	}
	if diff := cmp.Diff(want, allMessages); diff != "" {
		t.Errorf("combined notifications across reconnect (-want +got):\n%s", diff)
	}
}

func mustMarshalJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// postStreamable issues a single POST of msg to url and drains its response.
func postStreamable(url, sessionID string, msg JSONRPCMessage) (string, error) {
	return postStreamableEvents(context.Background(), url, sessionID, msg, func(event) bool { return true })
}

// mustStreamableRequest issues msg as a POST and returns the session ID the
// server assigned.
func mustStreamableRequest(t *testing.T, url, sessionID string, msg JSONRPCMessage) string {
	t.Helper()
	sid, err := postStreamable(url, sessionID, msg)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return sid
}

// postStreamableEvents POSTs msg to url and feeds every SSE event from the
// response to onEvent, stopping early if onEvent returns false or ctx is
// done. It returns the session ID reported by the response.
func postStreamableEvents(ctx context.Context, url, sessionID string, msg JSONRPCMessage, onEvent func(event) bool) (string, error) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	sid := resp.Header.Get("Mcp-Session-Id")

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return sid, nil
	}

	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			break
		}
		if !onEvent(evt) {
			break
		}
		select {
		case <-ctx.Done():
			return sid, nil
		default:
		}
	}
	return sid, nil
}
