// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var serverTracer = otel.Tracer("github.com/corerpc/mcp")

// TracingMiddleware returns a [Middleware] that opens a span named
// "mcp.server.<method>" around every dispatched method call, in the same
// shape the pack's reflow-gateway mcp-client wraps its own upstream calls:
// one attribute carrying the method name, span status set to error on
// failure, span closed via defer.
func TracingMiddleware() Middleware {
	return func(next MethodHandler) MethodHandler {
		return func(ctx context.Context, method string, req Request) (Result, error) {
			ctx, span := serverTracer.Start(ctx, "mcp.server."+method,
				trace.WithAttributes(attribute.String("mcp.method", method)),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			res, err := next(ctx, method, req)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			return res, err
		}
	}
}
