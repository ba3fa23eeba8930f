// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestServer(t *testing.T) *Server {
	s := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	AddTool(s, &Tool{Name: "echo", Description: "echoes its argument back"},
		func(ctx context.Context, req *ServerRequest[*CallToolParams], args json.RawMessage) (*CallToolResult, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return &CallToolResult{Content: []Content{&TextContent{Text: in.Text}}}, nil
		})
	return s
}

func connectedClientServer(t *testing.T) (*ClientSession, *Server) {
	t.Helper()
	s := newTestServer(t)
	clientTransport, serverTransport := NewInMemoryTransports()

	errc := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background(), serverTransport)
		errc <- err
	}()

	client := NewClient(&Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), clientTransport)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, s
}

func TestServerCallTool(t *testing.T) {
	cs, _ := connectedClientServer(t)

	res, err := cs.CallTool(context.Background(), "echo", map[string]string{"text": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	want := []Content{&TextContent{Text: "hello"}}
	if diff := cmp.Diff(want, res.Content, cmp.AllowUnexported(TextContent{})); diff != "" {
		t.Errorf("CallTool content mismatch (-want +got):\n%s", diff)
	}
}

func TestServerCallToolUnknown(t *testing.T) {
	cs, _ := connectedClientServer(t)

	if _, err := cs.CallTool(context.Background(), "does-not-exist", nil); err == nil {
		t.Fatal("CallTool on unknown tool: got nil error, want one")
	}
}

func TestServerCapabilitiesAdvertisesTasksOnlyWhenEnabled(t *testing.T) {
	s := NewServer(&Implementation{Name: "s", Version: "v"}, &ServerOptions{EnableTasks: true})
	if s.capabilities().Tasks == nil {
		t.Error("EnableTasks: true, but capabilities().Tasks is nil")
	}

	s2 := NewServer(&Implementation{Name: "s", Version: "v"}, nil)
	if s2.capabilities().Tasks != nil {
		t.Error("EnableTasks unset, but capabilities().Tasks is non-nil")
	}
}

func TestReceivingMiddlewareWrapsEveryCall(t *testing.T) {
	s := newTestServer(t)
	var seen []string
	s.AddReceivingMiddleware(func(next MethodHandler) MethodHandler {
		return func(ctx context.Context, method string, req Request) (Result, error) {
			seen = append(seen, method)
			return next(ctx, method, req)
		}
	})

	clientTransport, serverTransport := NewInMemoryTransports()
	go s.Connect(context.Background(), serverTransport)
	client := NewClient(&Implementation{Name: "c", Version: "v"}, nil)
	cs, err := client.Connect(context.Background(), clientTransport)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cs.Close()

	if _, err := cs.CallTool(context.Background(), "echo", map[string]string{"text": "x"}); err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	found := false
	for _, m := range seen {
		if m == "tools/call" {
			found = true
		}
	}
	if !found {
		t.Errorf("middleware saw methods %v, want it to include %q", seen, "tools/call")
	}
}
