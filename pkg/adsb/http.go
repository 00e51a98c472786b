package adsb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// HTTPOptions configures an HTTP tracking backend.
type HTTPOptions struct {
	// BaseURL overrides the backend's default API address
	BaseURL string

	// APIKey authenticates with the backend
	APIKey string

	// Host is the RapidAPI host (adsbexchange only)
	Host string

	// Timeout bounds each attempt (default: 10 seconds)
	Timeout time.Duration

	// MinInterval is the minimum spacing between requests; 0 disables limiting
	MinInterval time.Duration

	// Retry controls backoff for transient failures. ShouldRetry is always
	// replaced so that only transient failures are retried.
	Retry RetryConfig

	// Client is the HTTP client to use (default: a new client)
	Client *http.Client

	// Logger receives request diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// kindError attaches a Transient/Permanent classification to an error.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// MarkTransient classifies err as worth retrying.
func MarkTransient(err error) error {
	return &kindError{kind: Transient, err: err}
}

// MarkPermanent classifies err as not worth retrying.
func MarkPermanent(err error) error {
	return &kindError{kind: Permanent, err: err}
}

// KindOf returns the classification of err. Unclassified errors, including
// context expiry while waiting to retry, are Transient.
func KindOf(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	var te *TrackingError
	if errors.As(err, &te) {
		return te.Kind
	}
	return Transient
}

// CheckResponse classifies an HTTP response. It returns nil for 2xx, a
// transient *RateLimitError for 429, a transient *StatusError for 408 and
// 5xx, and a permanent *StatusError for every other status.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return MarkTransient(&RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		})
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	se := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout {
		return MarkTransient(se)
	}
	return MarkPermanent(se)
}

// httpBackend carries the transport shared by the HTTP tracking backends.
type httpBackend struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   RetryConfig
	logger  *slog.Logger
}

func newHTTPBackend(name, defaultBaseURL string, opts HTTPOptions) httpBackend {
	b := httpBackend{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.Client,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	if b.baseURL == "" {
		b.baseURL = defaultBaseURL
	}
	if b.timeout <= 0 {
		b.timeout = 10 * time.Second
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: b.timeout}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("backend", name)

	if opts.MinInterval > 0 {
		b.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	} else {
		b.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	b.retry.ShouldRetry = func(err error) bool { return KindOf(err) == Transient }
	b.retry.Logger = b.logger
	return b
}

// fetch performs GET url with retries and hands the body to decode.
// decode errors are Permanent unless already classified.
func (b *httpBackend) fetch(ctx context.Context, aircraftID, url string, header http.Header, decode func([]byte) (Position, error)) (Position, error) {
	pos, err := RetryWithBackoffResult(ctx, b.retry, func() (Position, error) {
		return b.attempt(ctx, url, header, decode)
	})
	if err != nil {
		return Position{}, &TrackingError{Kind: KindOf(err), Backend: b.name, AircraftID: aircraftID, Err: err}
	}

	b.logger.Debug("position received", "aircraft", aircraftID, "lat", pos.Latitude, "lon", pos.Longitude)
	return pos, nil
}

func (b *httpBackend) attempt(ctx context.Context, url string, header http.Header, decode func([]byte) (Position, error)) (Position, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Position{}, MarkTransient(fmt.Errorf("rate limiter: %w", err))
	}

	actx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return Position{}, MarkPermanent(fmt.Errorf("create request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Position{}, MarkTransient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Position{}, MarkPermanent(fmt.Errorf("%w: %w", ErrNotFound, se))
		}
		return Position{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Position{}, MarkTransient(fmt.Errorf("read response: %w", err))
	}

	pos, err := decode(body)
	if err != nil {
		var ke *kindError
		if errors.As(err, &ke) {
			return Position{}, err
		}
		return Position{}, MarkPermanent(err)
	}
	if err := pos.Coordinate().Validate(); err != nil {
		return Position{}, MarkPermanent(fmt.Errorf("invalid position in response: %w", err))
	}
	return pos, nil
}

// normalizeHex trims and lowercases an ICAO hex address.
func normalizeHex(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// emptyIDError is returned before any I/O for a blank aircraft identifier.
func emptyIDError(backend, aircraftID string) error {
	return &TrackingError{Kind: Permanent, Backend: backend, AircraftID: aircraftID, Err: errors.New("aircraft identifier is empty")}
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is, or wraps, a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// extractRateLimitHeaders extracts common rate limit headers from the response.
// RapidAPI uses the X-RateLimit-Requests-* variants.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := firstInt(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit", "X-RateLimit-Requests-Limit"); ok {
		rlh.Limit = v
	}
	if v, ok := firstInt(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining", "X-RateLimit-Requests-Remaining"); ok {
		rlh.Remaining = v
	}
	// Unix timestamp
	if v, ok := firstInt(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(int64(v), 0)
	}

	return rlh
}

func firstInt(headers http.Header, names ...string) (int, bool) {
	for _, name := range names {
		if raw := headers.Get(name); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
