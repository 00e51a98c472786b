package adsb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PositionStore reads stored positions. internal/db.Store
// implements it.
type PositionStore interface {
	// LatestPosition returns the most recent stored position for the
	// aircraft, or sql.ErrNoRows.
	LatestPosition(ctx context.Context, icao string) (Position, error)
}

// DatabaseSource implements Source over positions previously recorded in
// Postgres, for example by an earlier run or an external collector.
type DatabaseSource struct {
	store  PositionStore
	logger *slog.Logger
}

// NewDatabaseSource wraps store.
func NewDatabaseSource(store PositionStore, logger *slog.Logger) *DatabaseSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseSource{store: store, logger: logger.With("backend", "database")}
}

// Name implements Source.
func (s *DatabaseSource) Name() string { return "database" }

// LastPosition implements Source. A missing row is Permanent; any other
// database failure is Transient.
func (s *DatabaseSource) LastPosition(ctx context.Context, aircraftID string) (Position, error) {
	icao := normalizeHex(aircraftID)
	if icao == "" {
		return Position{}, emptyIDError(s.Name(), aircraftID)
	}

	pos, err := s.store.LatestPosition(ctx, icao)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, &TrackingError{Kind: Permanent, Backend: s.Name(), AircraftID: icao, Err: ErrNotFound}
	}
	if err != nil {
		return Position{}, &TrackingError{Kind: Transient, Backend: s.Name(), AircraftID: icao, Err: err}
	}
	if err := pos.Coordinate().Validate(); err != nil {
		return Position{}, &TrackingError{Kind: Permanent, Backend: s.Name(), AircraftID: icao, Err: fmt.Errorf("stored position is invalid: %w", err)}
	}

	s.logger.Debug("position loaded", "aircraft", icao, "last_seen", pos.LastSeen)
	return pos, nil
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *DatabaseSource) Close() error { return nil }
