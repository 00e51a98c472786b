package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AirplanesLiveBaseURL is the default airplanes.live API address.
const AirplanesLiveBaseURL = "https://api.airplanes.live/v2"

// AirplanesLiveClient implements Source for the airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	httpBackend
	apiKey string
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
// opts.BaseURL defaults to AirplanesLiveBaseURL.
func NewAirplanesLiveClient(opts HTTPOptions) *AirplanesLiveClient {
	return &AirplanesLiveClient{
		httpBackend: newHTTPBackend("airplanes.live", AirplanesLiveBaseURL, opts),
		apiKey:      opts.APIKey,
	}
}

// Name implements Source.
func (c *AirplanesLiveClient) Name() string { return c.name }

// LastPosition returns the aircraft's latest position using the /hex/[hex]
// endpoint. An empty "ac" array means the aircraft is not being tracked.
func (c *AirplanesLiveClient) LastPosition(ctx context.Context, aircraftID string) (Position, error) {
	hex := normalizeHex(aircraftID)
	if hex == "" {
		return Position{}, emptyIDError(c.name, aircraftID)
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("api-auth", c.apiKey)
	}

	url := fmt.Sprintf("%s/hex/%s", c.baseURL, hex)
	return c.fetch(ctx, hex, url, header, decodeReadsb)
}

// Close releases idle connections.
func (c *AirplanesLiveClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// readsbResponse is the readsb-style JSON served by airplanes.live and
// ADS-B Exchange. Lookups by hex return a single-element "ac" array; some
// ADS-B Exchange endpoints return the aircraft fields at top level instead,
// which are decoded through the embedded readsbAircraft.
type readsbResponse struct {
	// Aircraft is the array of aircraft data
	Aircraft []readsbAircraft `json:"ac"`

	// Now is the server timestamp in milliseconds since the epoch
	Now float64 `json:"now"`

	// Total number of aircraft
	Total int `json:"total"`

	// Msg is an error or status message
	Msg string `json:"msg"`

	readsbAircraft
}

// readsbAircraft represents a single aircraft in the response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type readsbAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345")
	Hex string `json:"hex"`

	// Flight is the callsign/flight number
	Flight *string `json:"flight"`

	// Lat is latitude in decimal degrees
	Lat *float64 `json:"lat"`

	// Lon is longitude in decimal degrees
	Lon *float64 `json:"lon"`

	// AltBaro is barometric altitude in feet
	// Note: Can be string "ground" or float
	AltBaro any `json:"alt_baro"`

	// AltGeom is geometric (GPS) altitude in feet
	// Note: Can be string "ground" or float
	AltGeom any `json:"alt_geom"`

	// Seen is seconds since last message
	Seen *float64 `json:"seen"`

	// SeenPos is seconds since last position message
	SeenPos *float64 `json:"seen_pos"`

	// LastPosition is present when the aircraft has not reported a position
	// recently (readsb "lastPosition" object)
	LastPosition *struct {
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		SeenPos float64 `json:"seen_pos"`
	} `json:"lastPosition"`
}

// decodeReadsb extracts the first aircraft with a usable position.
func decodeReadsb(body []byte) (Position, error) {
	var resp readsbResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Position{}, fmt.Errorf("failed to parse API response: %w", err)
	}

	ref := time.Now().UTC()
	if resp.Now > 0 {
		ref = time.UnixMilli(int64(resp.Now)).UTC()
	}

	candidates := resp.Aircraft
	if len(candidates) == 0 && (resp.Hex != "" || resp.Lat != nil) {
		candidates = []readsbAircraft{resp.readsbAircraft}
	}
	if len(candidates) == 0 {
		return Position{}, ErrNotFound
	}

	for _, ac := range candidates {
		if pos, ok := convertReadsbAircraft(ac, ref); ok {
			return pos, nil
		}
	}
	return Position{}, fmt.Errorf("%w: response has no coordinates", ErrNotFound)
}

// convertReadsbAircraft converts an aircraft record to a Position.
// ok is false when the record carries no position at all.
func convertReadsbAircraft(ac readsbAircraft, ref time.Time) (Position, bool) {
	pos := Position{
		ICAO: strings.ToLower(strings.TrimPrefix(ac.Hex, "~")),
	}

	if ac.Flight != nil {
		pos.Callsign = strings.TrimSpace(*ac.Flight)
	}

	seen := ac.SeenPos
	if seen == nil {
		seen = ac.Seen
	}

	switch {
	case ac.Lat != nil && ac.Lon != nil:
		pos.Latitude = *ac.Lat
		pos.Longitude = *ac.Lon
	case ac.LastPosition != nil:
		pos.Latitude = ac.LastPosition.Lat
		pos.Longitude = ac.LastPosition.Lon
		seen = &ac.LastPosition.SeenPos
	default:
		return Position{}, false
	}

	// Prefer geometric (GPS) over barometric altitude
	if alt := parseAltitude(ac.AltGeom); alt != nil {
		pos.AltitudeFt = *alt
	} else if alt := parseAltitude(ac.AltBaro); alt != nil {
		pos.AltitudeFt = *alt
	}

	pos.LastSeen = ref
	if seen != nil {
		pos.LastSeen = ref.Add(-time.Duration(*seen * float64(time.Second)))
	}

	return pos, true
}

// parseAltitude safely extracts altitude from a value which can be float64 or string.
// Returns nil if the value is invalid; "ground" is 0.
func parseAltitude(val any) *float64 {
	switch v := val.(type) {
	case float64:
		return &v
	case string:
		if v == "ground" {
			zero := 0.0
			return &zero
		}
		return nil
	default:
		return nil
	}
}
