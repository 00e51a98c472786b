package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Tracking backend tags.
const (
	TrackingAirplanesLive = "airplanes.live"
	TrackingADSBExchange  = "adsbexchange"
	TrackingFlightAware   = "flightaware"
	TrackingDatabase      = "database"
)

// Notification backend tags.
const (
	NotifyTwitter  = "twitter"
	NotifyWebhook  = "webhook"
	NotifyDatabase = "database"
	NotifyLog      = "log"
)

// TrackingBackends lists every tracking backend tag accepted by Validate.
var TrackingBackends = []string{TrackingAirplanesLive, TrackingADSBExchange, TrackingFlightAware, TrackingDatabase}

// NotificationBackends lists every notification backend tag accepted by Validate.
var NotificationBackends = []string{NotifyTwitter, NotifyWebhook, NotifyDatabase, NotifyLog}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Config represents the complete application configuration.
type Config struct {
	// AircraftID is the tracked aircraft: an ICAO hex address for the ADS-B
	// backends, or a registration/callsign for FlightAware
	AircraftID string `json:"aircraft_id"`

	Proximity    ProximityConfig    `json:"proximity"`
	Tracking     TrackingConfig     `json:"tracking"`
	Notification NotificationConfig `json:"notification"`
	Database     DatabaseConfig     `json:"database"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// ProximityConfig controls the nearest-airport lookup.
type ProximityConfig struct {
	// MaxDistanceKm is the inclusive great-circle threshold in kilometers
	MaxDistanceKm float64 `json:"max_distance_km"`

	// CatalogPath is the airport reference CSV
	CatalogPath string `json:"catalog_path"`

	// CacheSize is the number of lookups kept in the LRU (0 = default)
	CacheSize int `json:"cache_size"`
}

// TrackingConfig selects and configures the tracking backend.
type TrackingConfig struct {
	// Backend is one of TrackingBackends
	Backend string `json:"backend"`

	// BaseURL overrides the backend's default API address
	BaseURL string `json:"base_url"`

	// Host is the RapidAPI host for adsbexchange
	Host string `json:"host"`

	// APIKey authenticates with the backend (should be loaded from environment)
	APIKey string `json:"api_key,omitempty"`

	// TimeoutSeconds bounds each HTTP attempt
	TimeoutSeconds int `json:"timeout_seconds"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = no rate limit
	RateLimitSeconds float64 `json:"rate_limit_seconds"`

	// MaxRetries is the number of retries after a transient failure
	MaxRetries int `json:"max_retries"`
}

// NotificationConfig selects and configures the messaging backend.
type NotificationConfig struct {
	// Backend is one of NotificationBackends
	Backend string `json:"backend"`

	// BaseURL is the Twitter API address
	BaseURL string `json:"base_url"`

	// WebhookURL is the incoming webhook for the webhook backend
	WebhookURL string `json:"webhook_url,omitempty"`

	// AccessToken is an OAuth 2.0 user token (twitter) or bearer token (webhook)
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken enables the OAuth 2.0 refresh flow together with ClientID
	RefreshToken string `json:"refresh_token,omitempty"`

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// TokenFile keeps the rotated OAuth 2.0 token between runs
	TokenFile string `json:"token_file,omitempty"`

	// TimeoutSeconds bounds each HTTP attempt
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxRetries is the number of retries after a transient failure
	MaxRetries int `json:"max_retries"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Enabled turns on position recording and the database backends
	Enabled bool `json:"enabled"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password,omitempty"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// RetentionHours is how long position history is kept (0 = forever)
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the position history retention, 0 when unlimited.
func (d DatabaseConfig) Retention() time.Duration {
	return time.Duration(d.RetentionHours) * time.Hour
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Dir enables a rotating log file in this directory when set
	Dir string `json:"dir"`

	// Format is text or json
	Format string `json:"format"`
}

// MetricsConfig controls the end-of-run Pushgateway push.
type MetricsConfig struct {
	// PushgatewayURL disables pushing when empty
	PushgatewayURL string `json:"pushgateway_url"`

	// Job is the Pushgateway job label
	Job string `json:"job"`
}

// ConfigurationError reports an invalid or missing setting. It is raised
// before any network call is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Load reads configuration from a JSON file, applies environment overrides
// and validates the result. If the file doesn't exist, the defaults are
// used (still subject to overrides and validation).
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that adjust the result
// (for example from command line flags) before calling Validate.
func Read(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fall through with defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
// AircraftID is left empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Proximity: ProximityConfig{
			MaxDistanceKm: 1.0,
			CatalogPath:   "data/airports.csv",
			CacheSize:     256,
		},
		Tracking: TrackingConfig{
			Backend:          TrackingADSBExchange,
			Host:             "adsbexchange-com1.p.rapidapi.com",
			TimeoutSeconds:   10,
			RateLimitSeconds: 1.0,
			MaxRetries:       3,
		},
		Notification: NotificationConfig{
			Backend:        NotifyTwitter,
			BaseURL:        "https://api.twitter.com",
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "planespotter",
			Username:     "planespotter",
			SSLMode:      "disable",
			MaxOpenConns:   5,
			MaxIdleConns:   2,
			RetentionHours: 24 * 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "plane_spotter",
		},
	}
}

// Validate checks the configuration and returns the first problem found as
// a *ConfigurationError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AircraftID) == "" {
		return &ConfigurationError{Field: "aircraft_id", Reason: "is required"}
	}

	p := c.Proximity
	if math.IsNaN(p.MaxDistanceKm) || p.MaxDistanceKm <= 0 {
		return &ConfigurationError{Field: "proximity.max_distance_km", Reason: fmt.Sprintf("must be positive, got %v", p.MaxDistanceKm)}
	}
	if strings.TrimSpace(p.CatalogPath) == "" {
		return &ConfigurationError{Field: "proximity.catalog_path", Reason: "is required"}
	}
	if p.CacheSize < 0 {
		return &ConfigurationError{Field: "proximity.cache_size", Reason: "must not be negative"}
	}

	if c.Database.RetentionHours < 0 {
		return &ConfigurationError{Field: "database.retention_hours", Reason: "must not be negative"}
	}
	if err := c.Tracking.validate(c.Database.Enabled); err != nil {
		return err
	}
	if err := c.Notification.validate(c.Database.Enabled); err != nil {
		return err
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return &ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q (want one of %s)", c.Logging.Level, strings.Join(logLevels, ", "))}
	}
	if c.Logging.Format != "" && !slices.Contains(logFormats, c.Logging.Format) {
		return &ConfigurationError{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q (want text or json)", c.Logging.Format)}
	}

	return nil
}

func (t TrackingConfig) validate(dbEnabled bool) error {
	if !slices.Contains(TrackingBackends, t.Backend) {
		return &ConfigurationError{
			Field:  "tracking.backend",
			Reason: fmt.Sprintf("backend not known: %q (want one of %s)", t.Backend, strings.Join(TrackingBackends, ", ")),
		}
	}
	switch t.Backend {
	case TrackingADSBExchange:
		if t.APIKey == "" {
			return &ConfigurationError{Field: "tracking.api_key", Reason: "is required for adsbexchange"}
		}
		if t.Host == "" && t.BaseURL == "" {
			return &ConfigurationError{Field: "tracking.host", Reason: "is required for adsbexchange"}
		}
	case TrackingFlightAware:
		if t.APIKey == "" {
			return &ConfigurationError{Field: "tracking.api_key", Reason: "is required for flightaware"}
		}
	case TrackingDatabase:
		if !dbEnabled {
			return &ConfigurationError{Field: "tracking.backend", Reason: "database backend requires database.enabled"}
		}
	}
	if t.TimeoutSeconds < 0 {
		return &ConfigurationError{Field: "tracking.timeout_seconds", Reason: "must not be negative"}
	}
	if t.RateLimitSeconds < 0 || math.IsNaN(t.RateLimitSeconds) {
		return &ConfigurationError{Field: "tracking.rate_limit_seconds", Reason: "must not be negative"}
	}
	if t.MaxRetries < 0 {
		return &ConfigurationError{Field: "tracking.max_retries", Reason: "must not be negative"}
	}
	return nil
}

func (n NotificationConfig) validate(dbEnabled bool) error {
	if !slices.Contains(NotificationBackends, n.Backend) {
		return &ConfigurationError{
			Field:  "notification.backend",
			Reason: fmt.Sprintf("backend not known: %q (want one of %s)", n.Backend, strings.Join(NotificationBackends, ", ")),
		}
	}
	switch n.Backend {
	case NotifyTwitter:
		if n.AccessToken == "" && n.RefreshToken == "" {
			return &ConfigurationError{Field: "notification.access_token", Reason: "an access token or refresh token is required for twitter"}
		}
		if n.RefreshToken != "" && n.ClientID == "" {
			return &ConfigurationError{Field: "notification.client_id", Reason: "is required with a refresh token"}
		}
		if n.TokenFile != "" && n.RefreshToken == "" {
			return &ConfigurationError{Field: "notification.token_file", Reason: "requires a refresh token"}
		}
	case NotifyWebhook:
		if n.WebhookURL == "" {
			return &ConfigurationError{Field: "notification.webhook_url", Reason: "is required for webhook"}
		}
	case NotifyDatabase:
		if !dbEnabled {
			return &ConfigurationError{Field: "notification.backend", Reason: "database backend requires database.enabled"}
		}
	}
	if n.TimeoutSeconds < 0 {
		return &ConfigurationError{Field: "notification.timeout_seconds", Reason: "must not be negative"}
	}
	if n.MaxRetries < 0 {
		return &ConfigurationError{Field: "notification.max_retries", Reason: "must not be negative"}
	}
	return nil
}

// Timeout returns the per-attempt timeout, defaulting to 10 seconds.
func (t TrackingConfig) Timeout() time.Duration {
	return secondsOrDefault(t.TimeoutSeconds)
}

// MinInterval returns the minimum spacing between API calls.
func (t TrackingConfig) MinInterval() time.Duration {
	return time.Duration(t.RateLimitSeconds * float64(time.Second))
}

// Timeout returns the per-attempt timeout, defaulting to 10 seconds.
func (n NotificationConfig) Timeout() time.Duration {
	return secondsOrDefault(n.TimeoutSeconds)
}

func secondsOrDefault(s int) time.Duration {
	if s <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows credentials to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if id := os.Getenv("PLANE_SPOTTER_AIRCRAFT_ID"); id != "" {
		c.AircraftID = id
	}
	if apiKey := os.Getenv("PLANE_SPOTTER_TRACKING_API_KEY"); apiKey != "" {
		c.Tracking.APIKey = apiKey
	}
	if token := os.Getenv("PLANE_SPOTTER_NOTIFY_ACCESS_TOKEN"); token != "" {
		c.Notification.AccessToken = token
	}
	if token := os.Getenv("PLANE_SPOTTER_NOTIFY_REFRESH_TOKEN"); token != "" {
		c.Notification.RefreshToken = token
	}
	if secret := os.Getenv("PLANE_SPOTTER_NOTIFY_CLIENT_SECRET"); secret != "" {
		c.Notification.ClientSecret = secret
	}
	if url := os.Getenv("PLANE_SPOTTER_WEBHOOK_URL"); url != "" {
		c.Notification.WebhookURL = url
	}
	if dbPassword := os.Getenv("PLANE_SPOTTER_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
}
