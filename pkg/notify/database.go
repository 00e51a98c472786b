package notify

import (
	"context"
	"log/slog"
	"strings"
)

// NotificationStore persists delivered messages.
// internal/db.Store implements it.
type NotificationStore interface {
	InsertNotification(ctx context.Context, backend, message string) (int64, error)
}

// DatabaseSink records messages in the notifications table instead of
// sending them anywhere, which gives an audit trail of what would have been
// announced.
type DatabaseSink struct {
	store  NotificationStore
	logger *slog.Logger
}

// NewDatabaseSink wraps store.
func NewDatabaseSink(store NotificationStore, logger *slog.Logger) *DatabaseSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseSink{store: store, logger: logger.With("backend", "database")}
}

// Name implements Sink.
func (s *DatabaseSink) Name() string { return "database" }

// Send implements Sink. Database failures are Transient.
func (s *DatabaseSink) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return &NotificationError{Kind: Permanent, Backend: s.Name(), Err: ErrEmptyMessage}
	}
	id, err := s.store.InsertNotification(ctx, s.Name(), message)
	if err != nil {
		return &NotificationError{Kind: Transient, Backend: s.Name(), Err: err}
	}
	s.logger.Info("notification stored", "id", id)
	return nil
}

// LogSink writes messages to the logger. It never fails and is useful as a
// dry run.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("backend", "log")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Send implements Sink.
func (s *LogSink) Send(ctx context.Context, message string) error {
	s.logger.InfoContext(ctx, "notification", "message", message)
	return nil
}
