// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requestsTotal and requestDuration are registered against a
// server-specific registry rather than the global default one, the way the
// pack's unraid-management-agent daemon keeps its own metricsRegistry
// instead of polluting prometheus.DefaultRegisterer with library internals.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_server_requests_total",
			Help: "Total number of MCP method calls handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_server_request_duration_seconds",
			Help:    "MCP method call latency in seconds, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

type serverMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// MetricsMiddleware returns a [Middleware] recording a request counter and
// latency histogram for every dispatched method, registered against reg. A
// typical caller passes [prometheus.NewRegistry]'s result and serves it
// with promhttp.HandlerFor on its own /metrics endpoint, the same split the
// teacher pack's daemon/services/api package keeps between its internal
// registry and the handler that exposes it.
func MetricsMiddleware(reg prometheus.Registerer) Middleware {
	m := newServerMetrics(reg)
	return func(next MethodHandler) MethodHandler {
		return func(ctx context.Context, method string, req Request) (Result, error) {
			start := time.Now()
			res, err := next(ctx, method, req)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.requestsTotal.WithLabelValues(method, outcome).Inc()
			m.requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return res, err
		}
	}
}
