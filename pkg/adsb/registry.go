package adsb

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/unklstewy/plane-spotter/pkg/config"
)

// Deps carries the shared resources a backend may need.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client

	// Positions is required by the database backend
	Positions PositionStore
}

type sourceFactory func(cfg config.TrackingConfig, deps Deps) (Source, error)

var sources = map[string]sourceFactory{
	config.TrackingAirplanesLive: func(cfg config.TrackingConfig, deps Deps) (Source, error) {
		return NewAirplanesLiveClient(httpOptions(cfg, deps)), nil
	},
	config.TrackingADSBExchange: func(cfg config.TrackingConfig, deps Deps) (Source, error) {
		return NewADSBExchangeClient(httpOptions(cfg, deps)), nil
	},
	config.TrackingFlightAware: func(cfg config.TrackingConfig, deps Deps) (Source, error) {
		return NewFlightAwareClient(httpOptions(cfg, deps)), nil
	},
	config.TrackingDatabase: func(cfg config.TrackingConfig, deps Deps) (Source, error) {
		if deps.Positions == nil {
			return nil, errors.New("database backend requires a position store")
		}
		return NewDatabaseSource(deps.Positions, deps.Logger), nil
	},
}

// Backends returns the registered backend tags in sorted order.
func Backends() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewSource builds the backend selected by cfg.Backend. An unknown tag is a
// *config.ConfigurationError.
func NewSource(cfg config.TrackingConfig, deps Deps) (Source, error) {
	factory, ok := sources[cfg.Backend]
	if !ok {
		return nil, &config.ConfigurationError{
			Field:  "tracking.backend",
			Reason: fmt.Sprintf("backend not known: %q (want one of %s)", cfg.Backend, strings.Join(Backends(), ", ")),
		}
	}
	src, err := factory(cfg, deps)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "tracking.backend", Reason: err.Error()}
	}
	return src, nil
}

func httpOptions(cfg config.TrackingConfig, deps Deps) HTTPOptions {
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	return HTTPOptions{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Host:        cfg.Host,
		Timeout:     cfg.Timeout(),
		MinInterval: cfg.MinInterval(),
		Retry:       retry,
		Client:      deps.HTTPClient,
		Logger:      deps.Logger,
	}
}
