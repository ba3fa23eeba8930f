// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/corerpc/mcp/internal/jsonrpc2"
)

// event is one Server-Sent Event frame, per §6's "SSE framing": the
// standard event:/id:/data:/retry: fields, with exactly one JSON-RPC
// payload carried in data.
type event struct {
	name  string // SSE "event:" field; empty omits the field (default type "message")
	id    string // SSE "id:" field; empty omits the field
	data  []byte // SSE "data:" field
	retry int    // SSE "retry:" field in milliseconds; 0 omits the field
}

// writeEvent writes e to w in SSE wire format and flushes it to the
// underlying connection immediately, so a slow handler's progress is
// visible to the client as it happens rather than buffered until the
// response completes.
func writeEvent(w io.Writer, e event) (int, error) {
	var buf bytes.Buffer
	if e.name != "" {
		fmt.Fprintf(&buf, "event: %s\n", e.name)
	}
	if e.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", e.id)
	}
	if e.retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", e.retry)
	}
	for _, line := range bytes.Split(e.data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return n, nil
}

// scanEvents parses an SSE byte stream into a sequence of [event] values,
// yielding (event{}, io.EOF) once the stream ends cleanly so that callers
// using the two-value range form can distinguish "done" from "broken".
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

		var cur event
		var dataLines [][]byte
		haveEvent := false

		flush := func() (event, bool) {
			if !haveEvent {
				return event{}, false
			}
			cur.data = bytes.Join(dataLines, []byte("\n"))
			e := cur
			cur = event{}
			dataLines = nil
			haveEvent = false
			return e, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if e, ok := flush(); ok {
					if !yield(e, nil) {
						return
					}
				}
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			haveEvent = true
			switch field {
			case "event":
				cur.name = value
			case "id":
				cur.id = value
			case "data":
				dataLines = append(dataLines, []byte(value))
			case "retry":
				if n, err := strconv.Atoi(value); err == nil {
					cur.retry = n
				}
			default:
				// Unrecognized field (or a comment line starting with ":");
				// ignore per the SSE spec.
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		if e, ok := flush(); ok {
			if !yield(e, nil) {
				return
			}
		}
		yield(event{}, io.EOF)
	}
}

// readBatch decodes a JSON-RPC POST body that may be either a single
// message or a Batch (a JSON array of messages), per §3's Message data
// model. It reports whether the payload was a batch, which the caller
// uses to decide how to shape a JSON-mode response.
func readBatch(data []byte) (msgs []JSONRPCMessage, batch bool, err error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty payload")
	}
	if trimmed[0] != '[' {
		msg, err := jsonrpc2.DecodeMessage(data)
		if err != nil {
			return nil, false, err
		}
		return []JSONRPCMessage{msg}, false, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, true, err
	}
	msgs = make([]JSONRPCMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := jsonrpc2.DecodeMessage(raw)
		if err != nil {
			return nil, true, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}
