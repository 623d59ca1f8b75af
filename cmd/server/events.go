package main

import (
	"context"
	"log/slog"

	"github.com/aigoflow/sleep-quality-service/internal/repository"
)

// eventLogger records lifecycle events. Startup and shutdown continue when
// the event store is unavailable.
type eventLogger struct {
	repo repository.EventRepositoryInterface
}

func newEventLogger(repo repository.EventRepositoryInterface) *eventLogger {
	return &eventLogger{repo: repo}
}

func (e *eventLogger) log(level, code, msg string, meta map[string]interface{}) {
	if err := e.repo.LogEvent(context.Background(), level, code, msg, meta); err != nil {
		slog.Warn("Failed to record event", "code", code, "error", err)
	}
}
