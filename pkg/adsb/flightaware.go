package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FlightAwareBaseURL is the FlightAware AeroAPI v4 base URL.
const FlightAwareBaseURL = "https://aeroapi.flightaware.com/aeroapi"

// FlightAwareClient implements Source using the FlightAware AeroAPI v4.
//
// AeroAPI is keyed by flight ident (registration or callsign) rather than
// ICAO hex, so identifiers are passed through unchanged apart from trimming.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
// Rate Limits: Free tier allows 500 requests/month, paid tiers offer higher limits.
type FlightAwareClient struct {
	httpBackend
	apiKey string
}

// NewFlightAwareClient creates a new AeroAPI client.
func NewFlightAwareClient(opts HTTPOptions) *FlightAwareClient {
	return &FlightAwareClient{
		httpBackend: newHTTPBackend("flightaware", FlightAwareBaseURL, opts),
		apiKey:      opts.APIKey,
	}
}

// Name implements Source.
func (c *FlightAwareClient) Name() string { return c.name }

// LastPosition queries /flights/{ident}/position.
func (c *FlightAwareClient) LastPosition(ctx context.Context, aircraftID string) (Position, error) {
	ident := strings.TrimSpace(aircraftID)
	if ident == "" {
		return Position{}, emptyIDError(c.name, aircraftID)
	}

	header := http.Header{}
	header.Set("x-apikey", c.apiKey)

	u := fmt.Sprintf("%s/flights/%s/position", c.baseURL, url.PathEscape(ident))
	return c.fetch(ctx, ident, u, header, decodeAeroAPIPosition)
}

// Close releases idle connections.
func (c *FlightAwareClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// aeroAPIPositionResponse is the /flights/{ident}/position payload.
type aeroAPIPositionResponse struct {
	Ident        string `json:"ident"`
	FAFlightID   string `json:"fa_flight_id"`
	Registration string `json:"registration"`

	LastPosition *struct {
		// Altitude is in hundreds of feet
		Altitude  float64   `json:"altitude"`
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"last_position"`
}

func decodeAeroAPIPosition(body []byte) (Position, error) {
	var resp aeroAPIPositionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Position{}, fmt.Errorf("parse response: %w", err)
	}
	if resp.LastPosition == nil {
		return Position{}, fmt.Errorf("%w: flight has no last_position", ErrNotFound)
	}

	callsign := strings.TrimSpace(resp.Ident)
	if callsign == "" {
		callsign = strings.TrimSpace(resp.Registration)
	}

	lp := resp.LastPosition
	return Position{
		Callsign:   callsign,
		Latitude:   lp.Latitude,
		Longitude:  lp.Longitude,
		AltitudeFt: lp.Altitude * 100,
		LastSeen:   lp.Timestamp.UTC(),
	}, nil
}
