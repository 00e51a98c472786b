package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
)

// HTTPOptions configures an HTTP sink.
type HTTPOptions struct {
	// Timeout bounds each attempt (default: 10 seconds)
	Timeout time.Duration

	// Retry controls backoff for transient failures
	Retry adsb.RetryConfig

	// Client is the base HTTP client (default: a new client)
	Client *http.Client

	// Logger receives delivery diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// httpSink carries the transport shared by the HTTP sinks.
type httpSink struct {
	name    string
	client  *http.Client
	timeout time.Duration
	retry   adsb.RetryConfig
	logger  *slog.Logger
}

func newHTTPSink(name string, opts HTTPOptions) httpSink {
	s := httpSink{
		name:    name,
		client:  opts.Client,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("backend", name)
	s.retry.ShouldRetry = func(err error) bool { return adsb.KindOf(err) == adsb.Transient }
	s.retry.Logger = s.logger
	return s
}

// postJSON sends payload to url, retrying transient failures, and returns
// the body of the first successful response.
func (s *httpSink) postJSON(ctx context.Context, url string, payload any, header http.Header) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &NotificationError{Kind: Permanent, Backend: s.name, Err: fmt.Errorf("encode payload: %w", err)}
	}

	body, err := adsb.RetryWithBackoffResult(ctx, s.retry, func() ([]byte, error) {
		return s.attempt(ctx, url, data, header)
	})
	if err != nil {
		return nil, &NotificationError{Kind: adsb.KindOf(err), Backend: s.name, Err: err}
	}
	return body, nil
}

func (s *httpSink) attempt(ctx context.Context, url string, data []byte, header http.Header) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, adsb.MarkPermanent(fmt.Errorf("create request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Token refresh rejected by the authorization server
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < 500) {
			return nil, adsb.MarkPermanent(fmt.Errorf("refresh token: %w", err))
		}
		return nil, adsb.MarkTransient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if err := adsb.CheckResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		// The upstream already accepted the message; do not resend
		s.logger.Warn("failed to read response body", "error", err)
	}
	return body, nil
}
