package events

import (
	"context"
	"log/slog"
)

// AuditHandler writes one structured log line per lifecycle event.
type AuditHandler struct {
	logger *slog.Logger
}

// NewAuditHandler returns a handler logging to logger.
func NewAuditHandler(logger *slog.Logger) *AuditHandler {
	return &AuditHandler{logger: logger.With("component", "audit")}
}

// HandleEvent implements EventHandler.
func (h *AuditHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	level := slog.LevelInfo
	if event.Type == TaskFailed {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "task transition",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("task_id", event.TaskID),
		slog.String("state", string(event.State)),
		slog.Time("occurred_at", event.OccurredAt))
	return nil
}
