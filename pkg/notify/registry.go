package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
	"github.com/unklstewy/plane-spotter/pkg/config"
)

// Deps carries the shared resources a sink may need.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client

	// Notifications is required by the database sink
	Notifications NotificationStore
}

type sinkFactory func(cfg config.NotificationConfig, deps Deps) (Sink, error)

var sinks = map[string]sinkFactory{
	config.NotifyTwitter: func(cfg config.NotificationConfig, deps Deps) (Sink, error) {
		return NewTwitterClient(TwitterOptions{
			HTTPOptions:  httpOptions(cfg, deps),
			BaseURL:      cfg.BaseURL,
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenFile:    cfg.TokenFile,
		}), nil
	},
	config.NotifyWebhook: func(cfg config.NotificationConfig, deps Deps) (Sink, error) {
		if cfg.WebhookURL == "" {
			return nil, errors.New("webhook backend requires webhook_url")
		}
		return NewWebhookClient(cfg.WebhookURL, cfg.AccessToken, httpOptions(cfg, deps)), nil
	},
	config.NotifyDatabase: func(cfg config.NotificationConfig, deps Deps) (Sink, error) {
		if deps.Notifications == nil {
			return nil, errors.New("database backend requires a notification store")
		}
		return NewDatabaseSink(deps.Notifications, deps.Logger), nil
	},
	config.NotifyLog: func(cfg config.NotificationConfig, deps Deps) (Sink, error) {
		return NewLogSink(deps.Logger), nil
	},
}

// Backends returns the registered sink tags in sorted order.
func Backends() []string {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewSink builds the sink selected by cfg.Backend. An unknown tag is a
// *config.ConfigurationError.
func NewSink(cfg config.NotificationConfig, deps Deps) (Sink, error) {
	factory, ok := sinks[cfg.Backend]
	if !ok {
		return nil, &config.ConfigurationError{
			Field:  "notification.backend",
			Reason: fmt.Sprintf("backend not known: %q (want one of %s)", cfg.Backend, strings.Join(Backends(), ", ")),
		}
	}
	sink, err := factory(cfg, deps)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "notification.backend", Reason: err.Error()}
	}
	return sink, nil
}

func httpOptions(cfg config.NotificationConfig, deps Deps) HTTPOptions {
	retry := adsb.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	return HTTPOptions{
		Timeout: cfg.Timeout(),
		Retry:   retry,
		Client:  deps.HTTPClient,
		Logger:  deps.Logger,
	}
}
