package adsb

import (
	"context"
	"fmt"
	"net/http"
)

// ADSBExchangeHost is the default RapidAPI host for ADS-B Exchange.
const ADSBExchangeHost = "adsbexchange-com1.p.rapidapi.com"

// ADSBExchangeClient implements Source for the ADS-B Exchange API served
// through RapidAPI. Requests carry the X-RapidAPI-Key and X-RapidAPI-Host
// headers; the payload is readsb JSON.
type ADSBExchangeClient struct {
	httpBackend
	apiKey string
	host   string
}

// NewADSBExchangeClient creates a new ADS-B Exchange client. opts.Host
// defaults to ADSBExchangeHost and opts.BaseURL to https://{host}.
func NewADSBExchangeClient(opts HTTPOptions) *ADSBExchangeClient {
	host := opts.Host
	if host == "" {
		host = ADSBExchangeHost
	}
	return &ADSBExchangeClient{
		httpBackend: newHTTPBackend("adsbexchange", "https://"+host, opts),
		apiKey:      opts.APIKey,
		host:        host,
	}
}

// Name implements Source.
func (c *ADSBExchangeClient) Name() string { return c.name }

// LastPosition queries /v2/hex/{hex}/.
func (c *ADSBExchangeClient) LastPosition(ctx context.Context, aircraftID string) (Position, error) {
	hex := normalizeHex(aircraftID)
	if hex == "" {
		return Position{}, emptyIDError(c.name, aircraftID)
	}

	header := http.Header{}
	header.Set("X-RapidAPI-Key", c.apiKey)
	header.Set("X-RapidAPI-Host", c.host)

	url := fmt.Sprintf("%s/v2/hex/%s/", c.baseURL, hex)
	return c.fetch(ctx, hex, url, header, decodeReadsb)
}

// Close releases idle connections.
func (c *ADSBExchangeClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
