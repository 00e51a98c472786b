// Package spotter runs the fetch, resolve and notify workflow for one
// tracked aircraft.
//
// A run moves through the states
//
//	Idle -> FetchingPosition -> Resolving -> (NotMatched | Notifying) -> Done
//
// and ends in Failed when any stage returns an error. Nothing is retried at
// this layer; backends apply their own retry policy.
package spotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
	"github.com/unklstewy/plane-spotter/pkg/config"
	"github.com/unklstewy/plane-spotter/pkg/notify"
	"github.com/unklstewy/plane-spotter/pkg/proximity"
)

// State is a step of a run.
type State int

const (
	Idle State = iota
	FetchingPosition
	Resolving
	NotMatched
	Notifying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case FetchingPosition:
		return "FetchingPosition"
	case Resolving:
		return "Resolving"
	case NotMatched:
		return "NotMatched"
	case Notifying:
		return "Notifying"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stage names the step that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageResolve Stage = "resolve"
	StageNotify  Stage = "notify"
)

// Run outcomes reported to Metrics.
const (
	OutcomeMatched    = "matched"
	OutcomeNotMatched = "not_matched"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

// StageError reports which stage and backend failed a run.
type StageError struct {
	Stage   Stage
	Backend string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Backend, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient reports whether the underlying backend error is worth retrying
// on a later run.
func (e *StageError) Transient() bool {
	switch e.Stage {
	case StageFetch:
		return adsb.IsTransient(e.Err)
	case StageNotify:
		return notify.IsTransient(e.Err)
	}
	return false
}

// Recorder persists fetched positions. internal/db.Store
// implements it.
type Recorder interface {
	RecordPosition(ctx context.Context, pos adsb.Position) (bool, error)
}

// Metrics receives run measurements. internal/telemetry.Metrics implements it.
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(outcome string)
	MatchDistance(km float64)
}

// Options configures a Spotter. Source, Sink, Resolver and AircraftID are
// required.
type Options struct {
	Source        adsb.Source
	Sink          notify.Sink
	Resolver      proximity.Resolver
	AircraftID    string
	MaxDistanceKm float64

	Logger   *slog.Logger
	Metrics  Metrics
	Recorder Recorder

	// BeforeRun is called at the start of every run, for upkeep such as
	// restoring a database connection. An error is logged and the run
	// continues.
	BeforeRun func(ctx context.Context) error

	// FetchTimeout and SendTimeout bound the backend calls; zero means no
	// extra deadline beyond the caller's context
	FetchTimeout time.Duration
	SendTimeout  time.Duration
}

// Report describes a finished run.
type Report struct {
	AircraftID  string
	State       State
	Transitions []State
	Position    *adsb.Position
	Match       *proximity.Match
	Message     string

	// Skipped is set in watch mode when the matched airport was already
	// announced by the previous run
	Skipped bool

	Timings    map[Stage]time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Outcome summarises the report for metrics and logs.
func (r Report) Outcome() string {
	switch {
	case r.State == Failed:
		return OutcomeFailed
	case r.Skipped:
		return OutcomeSkipped
	case r.Match != nil:
		return OutcomeMatched
	}
	return OutcomeNotMatched
}

// Spotter runs the workflow. A Spotter must not run concurrently with
// itself; Watch serialises its runs.
type Spotter struct {
	opts   Options
	logger *slog.Logger

	// lastAirport is the code announced by the previous watch run
	lastAirport string
}

// New validates opts and returns a Spotter.
func New(opts Options) (*Spotter, error) {
	switch {
	case opts.Source == nil:
		return nil, &config.ConfigurationError{Field: "tracking.backend", Reason: "no tracking source"}
	case opts.Sink == nil:
		return nil, &config.ConfigurationError{Field: "notification.backend", Reason: "no notification sink"}
	case opts.Resolver == nil:
		return nil, &config.ConfigurationError{Field: "proximity.catalog_path", Reason: "no resolver"}
	case opts.AircraftID == "":
		return nil, &config.ConfigurationError{Field: "aircraft_id", Reason: "must not be empty"}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	return &Spotter{
		opts: opts,
		logger: logger.With(
			"aircraft", opts.AircraftID,
			"tracking_backend", opts.Source.Name(),
			"notification_backend", opts.Sink.Name(),
		),
	}, nil
}

// Run executes one pass of the workflow. On failure the returned error is a
// *StageError and the report's State is Failed.
func (s *Spotter) Run(ctx context.Context) (Report, error) {
	return s.run(ctx, false)
}

// Watch runs the workflow immediately and then every interval until ctx
// ends. A failed run is logged and does not stop the loop. A match at the
// same airport as the previous run is not announced again. Each report is
// passed to onReport when it is non-nil.
func (s *Spotter) Watch(ctx context.Context, interval time.Duration, onReport func(Report)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		report, _ := s.run(ctx, true)
		if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Spotter) run(ctx context.Context, dedupe bool) (Report, error) {
	r := &Report{
		AircraftID:  s.opts.AircraftID,
		State:       Idle,
		Transitions: []State{Idle},
		Timings:     make(map[Stage]time.Duration, 3),
		StartedAt:   time.Now(),
	}
	s.logger.Info("starting run")

	if s.opts.BeforeRun != nil {
		if err := s.opts.BeforeRun(ctx); err != nil {
			s.logger.Warn("pre-run upkeep failed", "error", err)
		}
	}

	// Idle -> FetchingPosition
	s.enter(r, FetchingPosition)
	pos, err := s.fetch(ctx, r)
	if err != nil {
		return s.fail(r, StageFetch, s.opts.Source.Name(), err)
	}
	r.Position = &pos
	s.logger.Info("aircraft last known location",
		"lat", pos.Latitude, "lon", pos.Longitude, "callsign", pos.Callsign, "last_seen", pos.LastSeen)
	s.record(ctx, pos)

	// FetchingPosition -> Resolving
	s.enter(r, Resolving)
	start := time.Now()
	match, err := s.opts.Resolver.Nearest(proximity.Query{
		Point:         pos.Coordinate(),
		MaxDistanceKm: s.opts.MaxDistanceKm,
	})
	s.observe(r, StageResolve, time.Since(start))
	if err != nil {
		return s.fail(r, StageResolve, "proximity", err)
	}

	if match == nil {
		s.enter(r, NotMatched)
		s.logger.Info("not near any known airport", "max_distance_km", s.opts.MaxDistanceKm)
		s.lastAirport = ""
		return s.finish(r), nil
	}

	r.Match = match
	r.Message = FormatMessage(pos, *match)
	s.opts.Metrics.MatchDistance(match.DistanceKm)
	s.logger.Info("near airport",
		"airport", match.Airport.Code, "name", match.Airport.Name, "distance_km", match.DistanceKm)

	if dedupe && s.lastAirport == match.Airport.Code {
		r.Skipped = true
		s.logger.Info("airport already announced, skipping notification", "airport", match.Airport.Code)
		return s.finish(r), nil
	}

	// Resolving -> Notifying
	s.enter(r, Notifying)
	if err := s.send(ctx, r); err != nil {
		return s.fail(r, StageNotify, s.opts.Sink.Name(), err)
	}
	s.lastAirport = match.Airport.Code
	s.logger.Info("notification sent")

	return s.finish(r), nil
}

func (s *Spotter) fetch(ctx context.Context, r *Report) (adsb.Position, error) {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	pos, err := s.opts.Source.LastPosition(ctx, s.opts.AircraftID)
	s.observe(r, StageFetch, time.Since(start))
	if err != nil {
		return adsb.Position{}, asTrackingError(err, s.opts.Source.Name(), s.opts.AircraftID)
	}
	return pos, nil
}

func (s *Spotter) send(ctx context.Context, r *Report) error {
	if s.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.opts.Sink.Send(ctx, r.Message)
	s.observe(r, StageNotify, time.Since(start))
	if err != nil {
		return asNotificationError(err, s.opts.Sink.Name())
	}
	return nil
}

// record stores pos when a recorder is configured. Failures only warn.
func (s *Spotter) record(ctx context.Context, pos adsb.Position) {
	if s.opts.Recorder == nil {
		return
	}
	// Ident-keyed backends such as FlightAware report no ICAO address;
	// history is then keyed on the tracked identifier.
	if strings.TrimSpace(pos.ICAO) == "" {
		pos.ICAO = s.opts.AircraftID
	}
	written, err := s.opts.Recorder.RecordPosition(ctx, pos)
	if err != nil {
		s.logger.Warn("failed to record position", "error", err)
		return
	}
	s.logger.Debug("position recorded", "written", written)
}

func (s *Spotter) enter(r *Report, next State) {
	s.logger.Debug("state transition", "from", r.State.String(), "to", next.String())
	r.State = next
	r.Transitions = append(r.Transitions, next)
}

func (s *Spotter) observe(r *Report, stage Stage, d time.Duration) {
	r.Timings[stage] = d
	s.opts.Metrics.ObserveStage(string(stage), d)
}

func (s *Spotter) fail(r *Report, stage Stage, backend string, err error) (Report, error) {
	stageErr := &StageError{Stage: stage, Backend: backend, Err: err}
	s.enter(r, Failed)
	r.Err = stageErr
	r.FinishedAt = time.Now()
	s.opts.Metrics.RunFinished(OutcomeFailed)
	s.logger.Error("run failed", "stage", string(stage), "backend", backend, "transient", stageErr.Transient(), "error", err)
	return *r, stageErr
}

func (s *Spotter) finish(r *Report) Report {
	s.enter(r, Done)
	r.FinishedAt = time.Now()
	s.opts.Metrics.RunFinished(r.Outcome())
	s.logger.Info("run finished", "outcome", r.Outcome(), "duration", r.FinishedAt.Sub(r.StartedAt))
	return *r
}

// FormatMessage renders the announcement for a match.
func FormatMessage(pos adsb.Position, m proximity.Match) string {
	place := m.Airport.Code
	if m.Airport.Name != "" && m.Airport.Name != m.Airport.Code {
		place = fmt.Sprintf("%s (%s)", m.Airport.Name, m.Airport.Code)
	}
	return fmt.Sprintf("%s was last seen %.1f km from %s", pos.DisplayName(), m.DistanceKm, place)
}

// asTrackingError makes sure every fetch failure carries a classification.
// A deadline or network failure outside the backend's own wrapping is
// Transient.
func asTrackingError(err error, backend, aircraftID string) error {
	var te *adsb.TrackingError
	if errors.As(err, &te) {
		return err
	}
	kind := adsb.Transient
	if errors.Is(err, context.Canceled) {
		kind = adsb.Permanent
	}
	return &adsb.TrackingError{Kind: kind, Backend: backend, AircraftID: aircraftID, Err: err}
}

func asNotificationError(err error, backend string) error {
	var ne *notify.NotificationError
	if errors.As(err, &ne) {
		return err
	}
	kind := notify.Transient
	if errors.Is(err, context.Canceled) {
		kind = notify.Permanent
	}
	return &notify.NotificationError{Kind: kind, Backend: backend, Err: err}
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) RunFinished(string)                  {}
func (nopMetrics) MatchDistance(float64)               {}
