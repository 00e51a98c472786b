// Package adsb fetches the last reported position of a single tracked
// aircraft from a pluggable tracking backend.
//
// Every backend classifies its failures as Transient (worth retrying later)
// or Permanent (retrying will not help) through *TrackingError, so callers
// never need to know which provider produced the error.
package adsb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/plane-spotter/pkg/coordinates"
)

// Position is the decoded last-known position of an aircraft.
// All position data is in WGS84 coordinate system.
type Position struct {
	// ICAO is the 24-bit ICAO aircraft address in lowercase hex (e.g., "a835af")
	ICAO string `json:"icao"`

	// Callsign is the flight number or registration, trimmed. May be empty.
	Callsign string `json:"callsign"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// AltitudeFt is altitude in feet MSL; 0 when on the ground or unknown
	AltitudeFt float64 `json:"altitude_ft"`

	// LastSeen is the timestamp of the position report
	LastSeen time.Time `json:"last_seen"`
}

// Coordinate projects the position onto a coordinates.Coordinate.
func (p Position) Coordinate() coordinates.Coordinate {
	return coordinates.New(p.Latitude, p.Longitude)
}

// DisplayName returns the callsign, or the ICAO address when no callsign
// was reported.
func (p Position) DisplayName() string {
	if p.Callsign != "" {
		return p.Callsign
	}
	return p.ICAO
}

// Source is implemented by every tracking backend.
type Source interface {
	// LastPosition returns the most recent known position of aircraftID.
	// Failures are returned as *TrackingError.
	LastPosition(ctx context.Context, aircraftID string) (Position, error)

	// Name returns the backend tag (e.g., "adsbexchange").
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	// Transient failures may succeed if retried later: network errors,
	// timeouts, rate limiting and upstream 5xx responses.
	Transient ErrorKind = iota

	// Permanent failures will not succeed on retry: unknown aircraft,
	// rejected credentials, malformed responses.
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrNotFound is wrapped by a Permanent TrackingError when the backend has
// no position for the requested aircraft.
var ErrNotFound = errors.New("no position reported for aircraft")

// TrackingError is returned by Source implementations.
type TrackingError struct {
	Kind       ErrorKind
	Backend    string
	AircraftID string
	Err        error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("%s: %s tracking error for %q: %v", e.Backend, e.Kind, e.AircraftID, e.Err)
}

func (e *TrackingError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a TrackingError worth retrying.
func IsTransient(err error) bool {
	var te *TrackingError
	return errors.As(err, &te) && te.Kind == Transient
}

// IsPermanent reports whether err is a TrackingError that will not succeed on retry.
func IsPermanent(err error) bool {
	var te *TrackingError
	return errors.As(err, &te) && te.Kind == Permanent
}
