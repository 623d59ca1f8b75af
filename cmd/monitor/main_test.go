package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/sleep-quality-service/internal/services"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestTrackerMergesHeartbeatsAndReports(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tr.ObserveHeartbeat(mustJSON(t, services.HealthStatus{ModelName: "b-model", Status: "online"}), start))
	require.NoError(t, tr.ObserveHeartbeat(mustJSON(t, services.HealthStatus{ModelName: "a-model", Status: "online"}), start))
	require.NoError(t, tr.ObserveBackpressure(mustJSON(t, services.BackpressureReport{ModelName: "a-model", PendingMessages: 4, Status: "warning"}), start.Add(time.Minute)))

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a-model", snap[0].Status.ModelName)
	require.NotNil(t, snap[0].Backpressure)
	assert.Equal(t, int64(4), snap[0].Backpressure.PendingMessages)
	assert.Equal(t, start.Add(time.Minute), snap[0].LastSeen)
	assert.Equal(t, start, snap[0].FirstSeen)
}

func TestTrackerMarksStaleServicesOffline(t *testing.T) {
	tr := NewTracker()
	start := time.Now()
	require.NoError(t, tr.ObserveHeartbeat(mustJSON(t, services.HealthStatus{ModelName: "m", Status: "online"}), start))

	tr.MarkStale(start.Add(time.Minute))
	assert.Equal(t, "online", tr.Snapshot()[0].Status.Status)

	tr.MarkStale(start.Add(3 * time.Minute))
	assert.Equal(t, "offline", tr.Snapshot()[0].Status.Status)
}

func TestTrackerRejectsMalformedPayloads(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.ObserveHeartbeat([]byte("{"), time.Now()))
	assert.Error(t, tr.ObserveBackpressure([]byte("nope"), time.Now()))
	assert.Empty(t, tr.Snapshot())
}

func TestPrintTable(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printTable(&buf, []ServiceState{{
		Status:       services.HealthStatus{ModelName: "sleep-quality", Status: "online"},
		Backpressure: &services.BackpressureReport{PendingMessages: 2, ActiveProcessing: 1, Status: "warning"},
		FirstSeen:    now.Add(-time.Hour),
		LastSeen:     now,
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, "sleep-quality")
	assert.Contains(t, out, "warning")
	assert.Contains(t, out, "1h0m0s")
}
