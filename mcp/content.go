// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"
)

// Content is implemented by [TextContent], the result content type
// produced by dispatched method handlers. Other content kinds
// (image/audio/resource/tool-use) are business semantics of specific
// methods and are out of scope here; callers needing them can define
// their own Content implementation.
type Content interface {
	MarshalJSON() ([]byte, error)
	contentType() string
}

// TextContent is textual result content.
type TextContent struct {
	Text string
	Meta Meta
}

func (c *TextContent) contentType() string { return "text" }

func (c *TextContent) MarshalJSON() ([]byte, error) {
	wire := struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Meta Meta   `json:"_meta,omitempty"`
	}{
		Type: "text",
		Text: c.Text,
		Meta: c.Meta,
	}
	return json.Marshal(wire)
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Meta Meta   `json:"_meta,omitempty"`
}

func unmarshalContent(raw json.RawMessage) ([]Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wires []*wireContent
	if err := json.Unmarshal(raw, &wires); err == nil {
		return contentsFromWire(wires)
	}
	var wire wireContent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	c, err := contentFromWire(&wire)
	if err != nil {
		return nil, err
	}
	return []Content{c}, nil
}

func contentsFromWire(wires []*wireContent) ([]Content, error) {
	blocks := make([]Content, 0, len(wires))
	for _, w := range wires {
		c, err := contentFromWire(w)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, c)
	}
	return blocks, nil
}

func contentFromWire(wire *wireContent) (Content, error) {
	if wire == nil {
		return nil, fmt.Errorf("nil content")
	}
	switch wire.Type {
	case "text":
		return &TextContent{Text: wire.Text, Meta: wire.Meta}, nil
	}
	return nil, fmt.Errorf("unrecognized content type %q", wire.Type)
}

// UnmarshalJSON implements [json.Unmarshaler], since Content is an
// interface and its concrete type must be recovered from the wire "type"
// discriminator.
func (r *CallToolResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Meta              Meta            `json:"_meta,omitempty"`
		Content           json.RawMessage `json:"content"`
		StructuredContent any             `json:"structuredContent,omitempty"`
		IsError           bool            `json:"isError,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := unmarshalContent(wire.Content)
	if err != nil {
		return err
	}
	r.Meta = wire.Meta
	r.Content = content
	r.StructuredContent = wire.StructuredContent
	r.IsError = wire.IsError
	return nil
}
