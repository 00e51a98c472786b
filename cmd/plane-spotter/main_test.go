package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unklstewy/plane-spotter/internal/db"
	"github.com/unklstewy/plane-spotter/internal/spotter"
	"github.com/unklstewy/plane-spotter/pkg/adsb"
	"github.com/unklstewy/plane-spotter/pkg/config"
	"github.com/unklstewy/plane-spotter/pkg/proximity"
)

const testCatalog = `code,name,latitude,longitude
JFK,John F Kennedy Intl,40.6413,-73.7781
LHR,London Heathrow,51.4700,-0.4543
`

// fixture writes a catalog and a config pointing at the given servers.
func fixture(t *testing.T, trackingURL, webhookURL string) options {
	t.Helper()
	for _, key := range []string{
		"PLANE_SPOTTER_AIRCRAFT_ID", "PLANE_SPOTTER_TRACKING_API_KEY",
		"PLANE_SPOTTER_NOTIFY_ACCESS_TOKEN", "PLANE_SPOTTER_WEBHOOK_URL",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "airports.csv")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.AircraftID = "a835af"
	cfg.Proximity.CatalogPath = catalogPath
	cfg.Tracking.Backend = config.TrackingAirplanesLive
	cfg.Tracking.BaseURL = trackingURL
	cfg.Tracking.RateLimitSeconds = 0
	cfg.Tracking.MaxRetries = 0
	cfg.Notification.Backend = config.NotifyWebhook
	cfg.Notification.WebhookURL = webhookURL
	cfg.Notification.MaxRetries = 0
	cfg.Logging.Level = "error"

	path := filepath.Join(dir, "config.json")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return options{configPath: path}
}

func trackingServer(t *testing.T, lat, lon float64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ac": []map[string]any{{"hex": "a835af", "flight": "N628TS  ", "lat": lat, "lon": lon}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

// TestRunExitCodes tests a full run against fake backends.
func TestRunExitCodes(t *testing.T) {
	t.Run("Match is announced", func(t *testing.T) {
		var message atomic.Value
		hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			message.Store(body["text"])
		}))
		defer hook.Close()

		opts := fixture(t, trackingServer(t, 40.6446, -73.7822).URL, hook.URL)
		var out bytes.Buffer
		if code := run(context.Background(), opts, &out); code != exitOK {
			t.Fatalf("Expected exit %d, got %d: %s", exitOK, code, out.String())
		}
		if got, _ := message.Load().(string); got != "N628TS was last seen 0.5 km from John F Kennedy Intl (JFK)" {
			t.Errorf("Unexpected message %q", got)
		}
		if !strings.Contains(out.String(), "Done") {
			t.Errorf("Expected summary with final state, got %q", out.String())
		}
	})

	t.Run("No match exits cleanly without notifying", func(t *testing.T) {
		var calls atomic.Int32
		hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer hook.Close()

		opts := fixture(t, trackingServer(t, 35.0, -40.0).URL, hook.URL)
		opts.quiet = true
		var out bytes.Buffer
		if code := run(context.Background(), opts, &out); code != exitOK {
			t.Fatalf("Expected exit %d, got %d", exitOK, code)
		}
		if calls.Load() != 0 {
			t.Errorf("Expected no notification, got %d", calls.Load())
		}
		if out.Len() != 0 {
			t.Errorf("Expected no output in quiet mode, got %q", out.String())
		}
	})

	t.Run("Backend failure exits 1", func(t *testing.T) {
		tracking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer tracking.Close()

		opts := fixture(t, tracking.URL, "http://127.0.0.1:1")
		var out bytes.Buffer
		if code := run(context.Background(), opts, &out); code != exitFailed {
			t.Fatalf("Expected exit %d, got %d", exitFailed, code)
		}
		if !strings.Contains(out.String(), "fetch") {
			t.Errorf("Expected failed stage in summary, got %q", out.String())
		}
	})

	t.Run("Dry run needs no notification settings", func(t *testing.T) {
		opts := fixture(t, trackingServer(t, 40.6446, -73.7822).URL, "")
		opts.dryRun = true
		opts.quiet = true
		if code := run(context.Background(), opts, &bytes.Buffer{}); code != exitOK {
			t.Fatalf("Expected exit %d, got %d", exitOK, code)
		}
	})

	t.Run("Configuration error exits 2", func(t *testing.T) {
		opts := fixture(t, "http://unused", "http://unused")
		raw, _ := os.ReadFile(opts.configPath)
		bad := strings.Replace(string(raw), `"airplanes.live"`, `"carrier-pigeon"`, 1)
		os.WriteFile(opts.configPath, []byte(bad), 0644)

		var out bytes.Buffer
		if code := run(context.Background(), opts, &out); code != exitSetup {
			t.Fatalf("Expected exit %d, got %d", exitSetup, code)
		}
		if !strings.Contains(out.String(), "tracking.backend") {
			t.Errorf("Expected offending setting in output, got %q", out.String())
		}
	})

	t.Run("Missing catalog exits 2", func(t *testing.T) {
		opts := fixture(t, "http://unused", "http://unused")
		cfg, _ := config.Read(opts.configPath)
		cfg.Proximity.CatalogPath = filepath.Join(t.TempDir(), "missing.csv")
		cfg.Save(opts.configPath)

		if code := run(context.Background(), opts, &bytes.Buffer{}); code != exitSetup {
			t.Fatalf("Expected exit %d, got %d", exitSetup, code)
		}
	})
}

// TestRunWatch tests the scheduled mode stops with the context.
func TestRunWatch(t *testing.T) {
	var calls atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer hook.Close()

	opts := fixture(t, trackingServer(t, 40.6446, -73.7822).URL, hook.URL)
	opts.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if code := run(ctx, opts, &out); code != exitOK {
		t.Fatalf("Expected exit %d, got %d", exitOK, code)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected the parked aircraft to be announced once, got %d", calls.Load())
	}
	if !strings.Contains(out.String(), "not announced again") {
		t.Errorf("Expected repeated runs to be reported, got %q", out.String())
	}
}

// TestRenderReport tests the summary box contents.
func TestRenderReport(t *testing.T) {
	pos := adsb.Position{ICAO: "a835af", Callsign: "N628TS", Latitude: 40.6446, Longitude: -73.7822}

	t.Run("Failed run shows stage", func(t *testing.T) {
		r := spotter.Report{
			AircraftID: "a835af",
			State:      spotter.Failed,
			Err: &spotter.StageError{
				Stage:   spotter.StageNotify,
				Backend: "twitter",
				Err:     errors.New("403 Forbidden"),
			},
		}
		out := renderReport(r)
		for _, want := range []string{"Failed", "notify (twitter)", "403 Forbidden"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected %q in %q", want, out)
			}
		}
	})

	t.Run("Matched run shows airport", func(t *testing.T) {
		r := spotter.Report{AircraftID: "a835af", State: spotter.Done, Position: &pos}
		r.Match = &proximity.Match{DistanceKm: 0.504}
		r.Match.Airport.Code = "JFK"
		r.Match.Airport.Name = "John F Kennedy Intl"
		out := renderReport(r)
		for _, want := range []string{"N628TS", "John F Kennedy Intl (JFK)", "0.50 km"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected %q in %q", want, out)
			}
		}
	})
}

// TestDashboard tests the watch dashboard model.
func TestDashboard(t *testing.T) {
	cancelled := false
	m := newDashboard("a835af", time.Minute, func() { cancelled = true })

	if !strings.Contains(m.View(), "waiting for first run") {
		t.Error("Expected waiting message before the first report")
	}

	failed := spotter.Report{State: spotter.Failed, Err: errors.New("boom"), StartedAt: time.Now()}
	next, _ := m.Update(reportMsg(failed))
	m = next.(dashboard)
	if m.runs != 1 || m.failed != 1 {
		t.Errorf("Expected 1 run and 1 failure, got %d/%d", m.runs, m.failed)
	}

	for i := 0; i < historySize+5; i++ {
		next, _ = m.Update(reportMsg(spotter.Report{State: spotter.Done, StartedAt: time.Now()}))
		m = next.(dashboard)
	}
	if len(m.history) != historySize {
		t.Errorf("Expected history capped at %d, got %d", historySize, len(m.history))
	}

	sum := db.Summary{
		Stats:  db.Stats{TrackedAircraft: 1, PositionRecords: 42, Notifications: 3},
		Recent: []db.Notification{{Backend: "twitter", Message: "N628TS was last seen 0.5 km from JFK", CreatedAt: time.Now()}},
		Track:  make([]adsb.Position, 7),
	}
	next, _ = m.Update(summaryMsg{summary: sum})
	m = next.(dashboard)
	view := m.View()
	for _, want := range []string{"positions 42", "notifications 3", "fixes in last 24h 7", "N628TS was last seen"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected %q in dashboard, got %q", want, view)
		}
	}

	next, _ = m.Update(summaryMsg{err: errors.New("database unavailable")})
	m = next.(dashboard)
	view = m.View()
	if !strings.Contains(view, "database unavailable") || !strings.Contains(view, "positions 42") {
		t.Errorf("Expected error with last known summary, got %q", view)
	}

	_, cmd := m.Update(watchDoneMsg{})
	if cmd == nil {
		t.Error("Expected quit command when the watch ends")
	}
	if cancelled {
		t.Error("Expected context to be left alone when the watch ends by itself")
	}
}
