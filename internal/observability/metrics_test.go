package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets/:id", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets/:id", "GET", 200, 30*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, 5*time.Millisecond)
	m.RecordError("/tickets/:id", "PATCH", "FORBIDDEN")

	snap := m.Snapshot()
	require.Len(t, snap.Requests, 2)
	assert.Equal(t, RouteStats{Route: "/tickets", Method: "POST", Status: 201, Count: 1, AvgDurationMS: 5}, snap.Requests[0])
	assert.Equal(t, int64(2), snap.Requests[1].Count)
	assert.InDelta(t, 20.0, snap.Requests[1].AvgDurationMS, 0.001)
	assert.Equal(t, []ErrorStats{{Route: "/tickets/:id", Method: "PATCH", Code: "FORBIDDEN", Count: 1}}, snap.Errors)
}

func TestNilMetricsIgnoresRecords(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "INTERNAL_ERROR")
	})
}
