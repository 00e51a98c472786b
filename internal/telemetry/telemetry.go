// Package telemetry records run metrics on a private Prometheus registry.
//
// plane-spotter is a batch job, so metrics are pushed to a Pushgateway when
// a run ends instead of being scraped.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the run collectors.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	matchDistance prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plane_spotter_runs_total",
			Help: "Completed runs by outcome (matched, not_matched, skipped, failed).",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plane_spotter_stage_duration_seconds",
			Help:    "Time spent in each run stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		matchDistance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "plane_spotter_last_match_distance_km",
			Help: "Distance to the airport matched by the most recent run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "plane_spotter_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished.",
		}),
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a run with the given outcome.
func (m *Metrics) RunFinished(outcome string) {
	m.runs.WithLabelValues(outcome).Inc()
	m.lastRun.SetToCurrentTime()
}

// MatchDistance records the distance of the latest match.
func (m *Metrics) MatchDistance(km float64) {
	m.matchDistance.Set(km)
}

// Push sends every collector to the Pushgateway at url under job, replacing
// the previous push for the job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return errors.New("no pushgateway url configured")
	}
	if job == "" {
		job = "plane_spotter"
	}
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
