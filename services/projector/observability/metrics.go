// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the projector.
//
// # Description
//
// Metrics cover the full event path: frames arriving from the relay,
// projection outcomes by kind, store round trips, reconnects, and the
// seen-cache hit rate. Exposed via the /metrics endpoint; use with
// Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "causality"

// Subsystem for projection metrics
const projectorSubsystem = "projector"

// Outcome labels a finished projection attempt.
type Outcome string

const (
	// OutcomeProjected indicates the event's mutation was committed.
	OutcomeProjected Outcome = "projected"

	// OutcomeDuplicate indicates a redelivery that changed nothing.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeMalformed indicates a dropped event with an invalid payload.
	OutcomeMalformed Outcome = "malformed"

	// OutcomeMissingDependency indicates a dropped event whose
	// prerequisite entity does not exist.
	OutcomeMissingDependency Outcome = "missing_dependency"

	// OutcomeStoreUnavailable indicates a transient store failure.
	OutcomeStoreUnavailable Outcome = "store_unavailable"

	// OutcomeIgnored indicates an event kind the projector does not handle.
	OutcomeIgnored Outcome = "ignored"
)

// ProjectorMetrics holds all Prometheus metrics for the projection path.
//
// Initialize once at startup via InitMetrics().
type ProjectorMetrics struct {
	// EventsTotal counts projection attempts by event kind and outcome.
	// Labels: kind (numeric event kind), outcome
	EventsTotal *prometheus.CounterVec

	// ProjectionDurationSeconds measures end-to-end projection latency
	// per event, lookups and mutation included.
	// Labels: kind
	ProjectionDurationSeconds *prometheus.HistogramVec

	// StoreOperationsTotal counts store round trips.
	// Labels: op (query, mutate, alter), status (success, error)
	StoreOperationsTotal *prometheus.CounterVec

	// RelayReconnectsTotal counts WebSocket reconnects to the relay.
	RelayReconnectsTotal prometheus.Counter

	// FramesTotal counts frames read from the relay by disposition.
	// Labels: disposition (event, skipped, invalid)
	FramesTotal *prometheus.CounterVec

	// SeenCacheLookupsTotal counts idempotency-probe cache lookups.
	// Labels: result (hit, miss)
	SeenCacheLookupsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of ProjectorMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ProjectorMetrics

// InitMetrics initializes the default metrics instance against the
// default Prometheus registry. Call once at startup; calling twice
// panics on duplicate registration.
func InitMetrics() *ProjectorMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates and registers the projector metrics against reg.
// Tests pass a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *ProjectorMetrics {
	factory := promauto.With(reg)

	return &ProjectorMetrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "events_total",
				Help:      "Projection attempts by event kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		ProjectionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "projection_duration_seconds",
				Help:      "End-to-end projection latency per event",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"kind"},
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "store_operations_total",
				Help:      "Graph store round trips by operation and status",
			},
			[]string{"op", "status"},
		),

		RelayReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "relay_reconnects_total",
				Help:      "WebSocket reconnects to the relay",
			},
		),

		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "frames_total",
				Help:      "Relay frames read by disposition",
			},
			[]string{"disposition"},
		),

		SeenCacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: projectorSubsystem,
				Name:      "seen_cache_lookups_total",
				Help:      "Seen-cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RecordEvent records a finished projection attempt.
func (m *ProjectorMetrics) RecordEvent(kind int, outcome Outcome) {
	m.EventsTotal.WithLabelValues(strconv.Itoa(kind), string(outcome)).Inc()
}

// ObserveProjection records the latency of one projection attempt.
func (m *ProjectorMetrics) ObserveProjection(kind int, seconds float64) {
	m.ProjectionDurationSeconds.WithLabelValues(strconv.Itoa(kind)).Observe(seconds)
}

// RecordStoreOp records one store round trip.
func (m *ProjectorMetrics) RecordStoreOp(op string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(op, status).Inc()
}

// RecordReconnect increments the relay reconnect counter.
func (m *ProjectorMetrics) RecordReconnect() {
	m.RelayReconnectsTotal.Inc()
}

// RecordFrame records one relay frame by disposition.
func (m *ProjectorMetrics) RecordFrame(disposition string) {
	m.FramesTotal.WithLabelValues(disposition).Inc()
}

// RecordCacheLookup records a seen-cache lookup result.
func (m *ProjectorMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SeenCacheLookupsTotal.WithLabelValues(result).Inc()
}
