// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Package-level counters let services record outcomes without holding a
// Server. NewMetrics registers them on every registry it is given.
var (
	accountOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_operations_total",
			Help: "Total number of account operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_tokens_issued_total",
			Help: "Total number of tokens issued by kind",
		},
		[]string{"kind"},
	)
	tokensRevoked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accounts_tokens_revoked_total",
			Help: "Total number of session tokens revoked",
		},
	)
)

// RecordAccountOperation counts one service operation by its result label.
func RecordAccountOperation(operation, outcome string) {
	accountOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordTokenIssued counts one issued token of kind.
func RecordTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// RecordTokenRevoked counts one revoked session token.
func RecordTokenRevoked() {
	tokensRevoked.Inc()
}

// Metrics holds the HTTP API request metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	checkFailures   *prometheus.CounterVec
}

// NewMetrics creates the request metrics and registers them, along with the
// package-level counters, on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		checkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_readiness_check_failures_total",
				Help: "Total number of failed readiness checks by dependency",
			},
			[]string{"check"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.checkFailures,
		accountOperations,
		tokensIssued,
		tokensRevoked,
	)
	return m
}
