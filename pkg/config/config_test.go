package config

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns the defaults plus the settings they leave empty.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AircraftID = "a835af"
	cfg.Tracking.APIKey = "rapidapi-key"
	cfg.Notification.AccessToken = "user-token"
	return cfg
}

func writeConfig(t *testing.T, cfg any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies that DefaultConfig returns the documented defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AircraftID != "" {
		t.Errorf("Expected no default aircraft, got %s", cfg.AircraftID)
	}
	if cfg.Proximity.MaxDistanceKm != 1.0 {
		t.Errorf("Expected max distance 1.0 km, got %f", cfg.Proximity.MaxDistanceKm)
	}
	if cfg.Proximity.CatalogPath != "data/airports.csv" {
		t.Errorf("Expected bundled catalog path, got %s", cfg.Proximity.CatalogPath)
	}
	if cfg.Tracking.Backend != TrackingADSBExchange {
		t.Errorf("Expected adsbexchange backend, got %s", cfg.Tracking.Backend)
	}
	if cfg.Tracking.Host != "adsbexchange-com1.p.rapidapi.com" {
		t.Errorf("Expected RapidAPI host, got %s", cfg.Tracking.Host)
	}
	if cfg.Notification.Backend != NotifyTwitter {
		t.Errorf("Expected twitter backend, got %s", cfg.Notification.Backend)
	}
	if cfg.Database.Enabled {
		t.Error("Expected database disabled by default")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected info log level, got %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Job != "plane_spotter" {
		t.Errorf("Expected plane_spotter job, got %s", cfg.Metrics.Job)
	}
}

// TestLoadNonExistentFile tests that a missing file yields validated defaults.
func TestLoadNonExistentFile(t *testing.T) {
	t.Run("Defaults without aircraft are rejected", func(t *testing.T) {
		t.Setenv("PLANE_SPOTTER_AIRCRAFT_ID", "")
		_, err := Load("/nonexistent/path/config.json")
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("Expected ConfigurationError, got: %v", err)
		}
		if ce.Field != "aircraft_id" {
			t.Errorf("Expected aircraft_id field, got %s", ce.Field)
		}
	})

	t.Run("Defaults completed from environment", func(t *testing.T) {
		t.Setenv("PLANE_SPOTTER_AIRCRAFT_ID", "a835af")
		t.Setenv("PLANE_SPOTTER_TRACKING_API_KEY", "env-key")
		t.Setenv("PLANE_SPOTTER_NOTIFY_ACCESS_TOKEN", "env-token")

		cfg, err := Load("/nonexistent/path/config.json")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cfg.AircraftID != "a835af" {
			t.Errorf("Expected aircraft from env, got %s", cfg.AircraftID)
		}
		if cfg.Proximity.MaxDistanceKm != 1.0 {
			t.Error("Did not get default config for non-existent file")
		}
	})
}

// TestReadSkipsValidation tests that Read returns an incomplete file for
// the caller to finish.
func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("PLANE_SPOTTER_AIRCRAFT_ID", "")

	incomplete := DefaultConfig()
	incomplete.Proximity.MaxDistanceKm = 2.5
	path := writeConfig(t, incomplete)

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Proximity.MaxDistanceKm != 2.5 {
		t.Errorf("Expected file value 2.5, got %v", cfg.Proximity.MaxDistanceKm)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected Validate to reject missing aircraft_id")
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected Load to validate")
	}
}

// TestLoadValidConfig tests loading a valid configuration file.
func TestLoadValidConfig(t *testing.T) {
	raw := map[string]any{
		"aircraft_id": "N12345",
		"proximity":   map[string]any{"max_distance_km": 2.5},
		"tracking": map[string]any{
			"backend":  "flightaware",
			"api_key":  "fa-key",
			"base_url": "https://fa.test",
		},
		"notification": map[string]any{
			"backend":     "webhook",
			"webhook_url": "https://hooks.test/abc",
		},
	}
	cfg, err := Load(writeConfig(t, raw))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.AircraftID != "N12345" {
		t.Errorf("Expected N12345, got %s", cfg.AircraftID)
	}
	if cfg.Proximity.MaxDistanceKm != 2.5 {
		t.Errorf("Expected 2.5 km, got %f", cfg.Proximity.MaxDistanceKm)
	}
	// Keys absent from the file keep their defaults
	if cfg.Proximity.CatalogPath != "data/airports.csv" {
		t.Errorf("Expected default catalog path, got %s", cfg.Proximity.CatalogPath)
	}
	if cfg.Tracking.Backend != TrackingFlightAware {
		t.Errorf("Expected flightaware, got %s", cfg.Tracking.Backend)
	}
	if cfg.Tracking.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Tracking.MaxRetries)
	}
	if cfg.Notification.WebhookURL != "https://hooks.test/abc" {
		t.Errorf("Expected webhook URL, got %s", cfg.Notification.WebhookURL)
	}
}

// TestLoadInvalidJSON tests error handling for malformed JSON.
func TestLoadInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

// TestValidate tests every configuration rule.
func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"Valid defaults", func(c *Config) {}, ""},
		{"Empty aircraft", func(c *Config) { c.AircraftID = "  " }, "aircraft_id"},
		{"Zero distance", func(c *Config) { c.Proximity.MaxDistanceKm = 0 }, "proximity.max_distance_km"},
		{"Negative distance", func(c *Config) { c.Proximity.MaxDistanceKm = -1 }, "proximity.max_distance_km"},
		{"NaN distance", func(c *Config) { c.Proximity.MaxDistanceKm = math.NaN() }, "proximity.max_distance_km"},
		{"Empty catalog path", func(c *Config) { c.Proximity.CatalogPath = "" }, "proximity.catalog_path"},
		{"Negative cache", func(c *Config) { c.Proximity.CacheSize = -1 }, "proximity.cache_size"},
		{"Unknown tracking backend", func(c *Config) { c.Tracking.Backend = "opensky" }, "tracking.backend"},
		{"Missing RapidAPI key", func(c *Config) { c.Tracking.APIKey = "" }, "tracking.api_key"},
		{"Missing RapidAPI host", func(c *Config) { c.Tracking.Host = "" }, "tracking.host"},
		{"Missing FlightAware key", func(c *Config) {
			c.Tracking.Backend = TrackingFlightAware
			c.Tracking.APIKey = ""
		}, "tracking.api_key"},
		{"airplanes.live needs no key", func(c *Config) {
			c.Tracking.Backend = TrackingAirplanesLive
			c.Tracking.APIKey = ""
		}, ""},
		{"Database tracking without database", func(c *Config) { c.Tracking.Backend = TrackingDatabase }, "tracking.backend"},
		{"Database tracking with database", func(c *Config) {
			c.Tracking.Backend = TrackingDatabase
			c.Database.Enabled = true
		}, ""},
		{"Negative retries", func(c *Config) { c.Tracking.MaxRetries = -1 }, "tracking.max_retries"},
		{"Negative retention", func(c *Config) { c.Database.RetentionHours = -1 }, "database.retention_hours"},
		{"Unlimited retention", func(c *Config) { c.Database.RetentionHours = 0 }, ""},
		{"Negative rate limit", func(c *Config) { c.Tracking.RateLimitSeconds = -0.5 }, "tracking.rate_limit_seconds"},
		{"Unknown notification backend", func(c *Config) { c.Notification.Backend = "mastodon" }, "notification.backend"},
		{"Twitter without token", func(c *Config) { c.Notification.AccessToken = "" }, "notification.access_token"},
		{"Twitter refresh without client", func(c *Config) {
			c.Notification.AccessToken = ""
			c.Notification.RefreshToken = "refresh"
		}, "notification.client_id"},
		{"Twitter token file without refresh token", func(c *Config) {
			c.Notification.TokenFile = "twitter-token.json"
		}, "notification.token_file"},
		{"Twitter token file with refresh token", func(c *Config) {
			c.Notification.RefreshToken = "refresh"
			c.Notification.ClientID = "client"
			c.Notification.TokenFile = "twitter-token.json"
		}, ""},
		{"Webhook without URL", func(c *Config) { c.Notification.Backend = NotifyWebhook }, "notification.webhook_url"},
		{"Database sink without database", func(c *Config) { c.Notification.Backend = NotifyDatabase }, "notification.backend"},
		{"Log sink", func(c *Config) { c.Notification.Backend = NotifyLog }, ""},
		{"Bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"Upper-case log level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
		{"Bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}

			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigurationError, got: %v", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s (%v)", tt.wantField, ce.Field, err)
			}
		})
	}
}

// TestSaveConfig tests saving configuration to file.
func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dir", "saved-config.json")

	cfg := validConfig()
	cfg.Proximity.MaxDistanceKm = 3
	cfg.Notification.Backend = NotifyLog

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Proximity.MaxDistanceKm != 3 {
		t.Errorf("Expected 3 km, got %f", loaded.Proximity.MaxDistanceKm)
	}
	if loaded.Notification.Backend != NotifyLog {
		t.Errorf("Expected log backend, got %s", loaded.Notification.Backend)
	}
}

// TestEnvironmentOverrides tests environment variable overrides.
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PLANE_SPOTTER_AIRCRAFT_ID", "abc123")
	t.Setenv("PLANE_SPOTTER_TRACKING_API_KEY", "env-tracking-key")
	t.Setenv("PLANE_SPOTTER_NOTIFY_ACCESS_TOKEN", "env-access")
	t.Setenv("PLANE_SPOTTER_NOTIFY_REFRESH_TOKEN", "env-refresh")
	t.Setenv("PLANE_SPOTTER_NOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("PLANE_SPOTTER_WEBHOOK_URL", "https://env.hooks/x")
	t.Setenv("PLANE_SPOTTER_DB_PASSWORD", "env-password")

	fileCfg := validConfig()
	fileCfg.Notification.ClientID = "client"
	fileCfg.Database.Password = "original-password"

	cfg, err := Load(writeConfig(t, fileCfg))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	checks := map[string][2]string{
		"aircraft_id":   {cfg.AircraftID, "abc123"},
		"api_key":       {cfg.Tracking.APIKey, "env-tracking-key"},
		"access_token":  {cfg.Notification.AccessToken, "env-access"},
		"refresh_token": {cfg.Notification.RefreshToken, "env-refresh"},
		"client_secret": {cfg.Notification.ClientSecret, "env-secret"},
		"webhook_url":   {cfg.Notification.WebhookURL, "https://env.hooks/x"},
		"db_password":   {cfg.Database.Password, "env-password"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("Expected %s %q from env, got %q", name, c[1], c[0])
		}
	}
}

// TestDurations tests the derived timeouts.
func TestDurations(t *testing.T) {
	tc := TrackingConfig{TimeoutSeconds: 0, RateLimitSeconds: 1.5}
	if tc.Timeout() != 10*time.Second {
		t.Errorf("Expected default timeout 10s, got %v", tc.Timeout())
	}
	if tc.MinInterval() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s interval, got %v", tc.MinInterval())
	}

	nc := NotificationConfig{TimeoutSeconds: 3}
	if nc.Timeout() != 3*time.Second {
		t.Errorf("Expected 3s, got %v", nc.Timeout())
	}
}
