// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/corerpc/mcp/internal/jsonrpc2"
)

// Connection is one end of a logical session: it moves JSON-RPC messages
// to and from the peer, per §4.1. Read and Write may be called
// concurrently with each other but each is called by only one goroutine
// at a time (the protocol engine serializes its own calls).
type Connection interface {
	// Read returns the next message from the peer, blocking until one
	// arrives, ctx is cancelled, or the connection closes (io.EOF).
	Read(ctx context.Context) (JSONRPCMessage, error)
	// Write sends msg to the peer.
	Write(ctx context.Context, msg JSONRPCMessage) error
	// SessionID returns the transport-assigned session identifier, or ""
	// for transports (like stdio) that do not have one.
	SessionID() string
	// Close terminates the connection. It is safe to call more than
	// once; the close callback fires exactly once.
	Close() error
}

// Transport knows how to open a [Connection] to a peer. Clients use
// Transport to connect out; servers are handed a Connection per accepted
// session by their HTTP handler instead.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}

// stdioConnection is a Connection over newline-delimited JSON on two
// io.Reader/Writer streams, matching the stdio transport required by
// §4.1.
type stdioConnection struct {
	in  *bufio.Reader
	out io.Writer

	mu       sync.Mutex // guards out
	closeOne sync.Once
	closer   io.Closer
}

// StdioTransport is a [Transport] over the process's standard input and
// output, one peer per process, newline-delimited JSON-RPC messages.
type StdioTransport struct{}

// NewStdioTransport returns a StdioTransport using os.Stdin and
// os.Stdout.
func NewStdioTransport() *StdioTransport { return &StdioTransport{} }

func (t *StdioTransport) Connect(ctx context.Context) (Connection, error) {
	return newIOConnection(os.Stdin, os.Stdout), nil
}

func newIOConnection(in io.Reader, out io.Writer) *stdioConnection {
	c := &stdioConnection{in: bufio.NewReader(in), out: out}
	if closer, ok := in.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

func (c *stdioConnection) Read(ctx context.Context) (JSONRPCMessage, error) {
	type result struct {
		msg JSONRPCMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := c.in.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			ch <- result{nil, err}
			return
		}
		msg, err := jsonrpc2.DecodeMessage(line)
		ch <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.msg, r.err
	}
}

func (c *stdioConnection) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("stdio write: %w", err)
	}
	return nil
}

func (c *stdioConnection) SessionID() string { return "" }

func (c *stdioConnection) Close() error {
	var err error
	c.closeOne.Do(func() {
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}

// inMemoryTransport is an in-process [Connection] paired with another via
// channels: the "in-memory paired transport" required by §4.1, used for
// tests and embedding a client and server in one process.
type inMemoryTransport struct {
	sessionID string
	incoming  chan JSONRPCMessage
	outgoing  chan JSONRPCMessage
	closed    chan struct{}
	closeOnce sync.Once
}

// NewInMemoryTransports returns two connected [Transport] values such
// that messages written to one are read from the other.
func NewInMemoryTransports() (client, server Transport) {
	aToB := make(chan JSONRPCMessage, 16)
	bToA := make(chan JSONRPCMessage, 16)
	closed := make(chan struct{})
	a := &inMemoryTransport{incoming: bToA, outgoing: aToB, closed: closed}
	b := &inMemoryTransport{incoming: aToB, outgoing: bToA, closed: closed}
	return staticTransport{a}, staticTransport{b}
}

type staticTransport struct{ conn Connection }

func (t staticTransport) Connect(ctx context.Context) (Connection, error) { return t.conn, nil }

func (t *inMemoryTransport) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, io.EOF
	case msg, ok := <-t.incoming:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	}
}

func (t *inMemoryTransport) Write(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return fmt.Errorf("mcp: write on closed in-memory transport")
	case t.outgoing <- msg:
		return nil
	}
}

func (t *inMemoryTransport) SessionID() string { return t.sessionID }

func (t *inMemoryTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// LoggingTransport wraps a [Transport], logging every message read from
// and written to the wrapped connection's peer. It is grounded in the
// original SDK's NewLoggingTransport helper, used the same way in
// examples/hello.
type LoggingTransport struct {
	Transport Transport
	Writer    io.Writer
}

// NewLoggingTransport returns a Transport that logs traffic on t to w.
func NewLoggingTransport(t Transport, w io.Writer) *LoggingTransport {
	return &LoggingTransport{Transport: t, Writer: w}
}

// NewRotatingLogFile returns a [lumberjack.Logger] writing to path, rotating
// once it passes 5MB and keeping one compressed backup for a day — the same
// sizing the pack's unraid-management-agent daemon uses for its own
// stdio-transport-adjacent logging, chosen there so that file logging never
// competes with the stdio transport for descriptor space or corrupts a
// message stream sharing the same terminal. The returned writer is an
// [io.WriteCloser]; callers that also want console output can wrap it with
// io.MultiWriter before passing it to [NewLoggingTransport].
func NewRotatingLogFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 1,
		MaxAge:     1,
		Compress:   true,
	}
}

func (t *LoggingTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{conn: conn, w: t.Writer}, nil
}

type loggingConnection struct {
	conn Connection
	mu   sync.Mutex
	w    io.Writer
}

func (c *loggingConnection) Read(ctx context.Context) (JSONRPCMessage, error) {
	msg, err := c.conn.Read(ctx)
	if err == nil {
		c.log("read", msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.log("write", msg)
	return c.conn.Write(ctx, msg)
}

func (c *loggingConnection) SessionID() string { return c.conn.SessionID() }
func (c *loggingConnection) Close() error      { return c.conn.Close() }

func (c *loggingConnection) log(dir string, msg JSONRPCMessage) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", dir, data)
}
