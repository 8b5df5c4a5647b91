// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEvent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEvent(1, OutcomeProjected)
	m.RecordEvent(1, OutcomeProjected)
	m.RecordEvent(3, OutcomeDuplicate)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("1", "projected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("3", "duplicate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("1", "malformed")))
}

func TestRecordStoreOp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStoreOp("query", true)
	m.RecordStoreOp("mutate", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("mutate", "error")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeenCacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SeenCacheLookupsTotal.WithLabelValues("miss")))
}

func TestRecordReconnectAndFrames(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordReconnect()
	m.RecordFrame("event")
	m.RecordFrame("skipped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayReconnectsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("event")))
}

func TestObserveProjection_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveProjection(1, 0.02)

	count, err := testutil.GatherAndCount(reg, "causality_projector_projection_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
