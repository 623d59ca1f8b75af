package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigoflow/sleep-quality-service/internal/models"
	"github.com/aigoflow/sleep-quality-service/internal/store"
)

func openTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func TestRequestLogsNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		err := repo.Request().LogRequest(ctx, &models.RequestLog{
			Timestamp:  start.Add(time.Duration(i) * time.Second),
			ReqID:      fmt.Sprintf("req-%d", i),
			WorkerID:   "http-worker",
			Source:     "http.predict",
			RawInput:   `{"Age":30}`,
			Features:   "[30]",
			Prediction: "1",
			DurationMs: 1.5,
			Status:     "ok",
		})
		require.NoError(t, err)
	}

	logs, err := repo.Request().GetRequestLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "req-2", logs[0].ReqID)
	assert.Equal(t, "req-1", logs[1].ReqID)
	assert.Equal(t, "http.predict", logs[0].Source)
	assert.InDelta(t, 1.5, logs[0].DurationMs, 0.01)
	assert.WithinDuration(t, start.Add(2*time.Second), logs[0].Timestamp, time.Millisecond)
}

func TestEventsAreRecorded(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Event().LogEvent(ctx, "info", "startup", "Server starting", map[string]interface{}{"http_addr": ":8000"}))
	require.NoError(t, repo.Event().LogEvent(ctx, "info", "server.ready", "Server ready", nil))

	events, err := repo.Event().GetEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "server.ready", events[0].Code)
	assert.Equal(t, `{"http_addr":":8000"}`, events[1].Meta)
}

func TestLogEventReportsStoreErrors(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "closed.sqlite"))
	require.NoError(t, err)
	repo := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err = repo.Event().LogEvent(context.Background(), "info", "startup", "Server starting", nil)
	assert.ErrorContains(t, err, "insert event")
}
