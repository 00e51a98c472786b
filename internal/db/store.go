package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
)

// cleanupInterval is the minimum time between retention sweeps.
const cleanupInterval = time.Hour

// writeRetries is how often a lost connection is retried per operation.
const writeRetries = 2

// Store bundles the repositories with connection upkeep. Every operation
// retries lost connections through WithRetry. It implements
// adsb.PositionStore, notify.NotificationStore and the run recorder.
type Store struct {
	db            *DB
	positions     *PositionRepository
	notifications *NotificationRepository
	retention     time.Duration
	logger        *slog.Logger

	lastCleanup time.Time
}

// Summary is what the database knows about a tracked aircraft.
type Summary struct {
	Stats  Stats
	Recent []Notification
	Track  []adsb.Position
}

// NewStore wraps db. Position history older than retention is removed by
// Maintain; 0 keeps it forever.
func NewStore(db *DB, retention time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:            db,
		positions:     NewPositionRepository(db),
		notifications: NewNotificationRepository(db),
		retention:     retention,
		logger:        logger.With("component", "database"),
	}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Maintain restores a lost connection and, at most once per
// cleanupInterval, removes position history past the retention period.
func (s *Store) Maintain(ctx context.Context) error {
	if err := s.db.EnsureConnection(ctx, s.logger); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	if s.retention <= 0 || time.Since(s.lastCleanup) < cleanupInterval {
		return nil
	}

	var removed int64
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		removed, err = s.db.CleanupOldData(ctx, s.retention)
		return err
	}, writeRetries)
	if err != nil {
		return err
	}
	s.lastCleanup = time.Now()
	if removed > 0 {
		s.logger.Info("old positions removed", "rows", removed, "retention", s.retention)
	}
	return nil
}

// RecordPosition stores pos unless it repeats the latest stored fix.
func (s *Store) RecordPosition(ctx context.Context, pos adsb.Position) (bool, error) {
	var written bool
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		written, err = s.positions.RecordPosition(ctx, pos)
		return err
	}, writeRetries)
	return written, err
}

// LatestPosition returns the newest stored position for icao.
func (s *Store) LatestPosition(ctx context.Context, icao string) (adsb.Position, error) {
	var pos adsb.Position
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		pos, err = s.positions.LatestPosition(ctx, icao)
		return err
	}, writeRetries)
	return pos, err
}

// InsertNotification stores an announcement and returns its id.
func (s *Store) InsertNotification(ctx context.Context, backend, message string) (int64, error) {
	var id int64
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.notifications.InsertNotification(ctx, backend, message)
		return err
	}, writeRetries)
	return id, err
}

// Summary returns table counts, the newest limit notifications and the
// positions stored for icao since the given time.
func (s *Store) Summary(ctx context.Context, icao string, since time.Time, limit int) (Summary, error) {
	var sum Summary
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		if sum.Stats, err = s.db.GetStats(ctx); err != nil {
			return err
		}
		if sum.Recent, err = s.notifications.Recent(ctx, limit); err != nil {
			return err
		}
		sum.Track, err = s.positions.History(ctx, icao, since)
		return err
	}, writeRetries)
	return sum, err
}
