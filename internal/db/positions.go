package db

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
)

// PositionRepository stores fetched aircraft positions.
// It implements adsb.PositionStore and the orchestrator's recorder.
type PositionRepository struct {
	db *DB
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// RecordPosition appends pos to the history. A position identical to the
// latest stored one for the aircraft is skipped, so repeated polls of a
// parked aircraft do not grow the table. Returns whether a row was written.
func (r *PositionRepository) RecordPosition(ctx context.Context, pos adsb.Position) (bool, error) {
	icao := strings.ToLower(strings.TrimSpace(pos.ICAO))
	if icao == "" {
		return false, errors.New("position has no ICAO address")
	}
	if err := pos.Coordinate().Validate(); err != nil {
		return false, err
	}

	prev, err := r.LatestPosition(ctx, icao)
	switch {
	case err == nil:
		if positionsEqual(pos, prev) {
			return false, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	lastSeen := pos.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO aircraft_positions (icao, callsign, latitude, longitude, altitude_ft, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		icao, strings.TrimSpace(pos.Callsign),
		pos.Latitude, pos.Longitude, pos.AltitudeFt,
		lastSeen.UTC(),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestPosition returns the most recently seen position for icao, or
// sql.ErrNoRows when none is stored.
func (r *PositionRepository) LatestPosition(ctx context.Context, icao string) (adsb.Position, error) {
	var p adsb.Position
	err := r.db.QueryRowContext(ctx,
		`SELECT icao, callsign, latitude, longitude, altitude_ft, last_seen
		 FROM aircraft_positions
		 WHERE icao = $1
		 ORDER BY last_seen DESC, id DESC
		 LIMIT 1`,
		strings.ToLower(strings.TrimSpace(icao)),
	).Scan(&p.ICAO, &p.Callsign, &p.Latitude, &p.Longitude, &p.AltitudeFt, &p.LastSeen)
	if err != nil {
		return adsb.Position{}, err
	}
	return p, nil
}

// History returns the positions stored for icao since the given time,
// oldest first.
func (r *PositionRepository) History(ctx context.Context, icao string, since time.Time) ([]adsb.Position, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT icao, callsign, latitude, longitude, altitude_ft, last_seen
		 FROM aircraft_positions
		 WHERE icao = $1 AND last_seen >= $2
		 ORDER BY last_seen ASC, id ASC`,
		strings.ToLower(strings.TrimSpace(icao)), since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []adsb.Position
	for rows.Next() {
		var p adsb.Position
		if err := rows.Scan(&p.ICAO, &p.Callsign, &p.Latitude, &p.Longitude, &p.AltitudeFt, &p.LastSeen); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// positionsEqual reports whether two reports describe the same fix. The
// timestamp is ignored: a parked aircraft keeps reporting the same place.
func positionsEqual(current, prev adsb.Position) bool {
	// 0.000001 degrees is about 0.1 m
	const positionTolerance = 0.000001
	const altitudeTolerance = 1.0

	if math.Abs(current.Latitude-prev.Latitude) > positionTolerance {
		return false
	}
	if math.Abs(current.Longitude-prev.Longitude) > positionTolerance {
		return false
	}
	if math.Abs(current.AltitudeFt-prev.AltitudeFt) > altitudeTolerance {
		return false
	}
	return strings.TrimSpace(current.Callsign) == strings.TrimSpace(prev.Callsign)
}
