package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unklstewy/plane-spotter/internal/db"
	"github.com/unklstewy/plane-spotter/internal/logging"
	"github.com/unklstewy/plane-spotter/internal/spotter"
	"github.com/unklstewy/plane-spotter/internal/telemetry"
	"github.com/unklstewy/plane-spotter/pkg/adsb"
	"github.com/unklstewy/plane-spotter/pkg/airports"
	"github.com/unklstewy/plane-spotter/pkg/config"
	"github.com/unklstewy/plane-spotter/pkg/notify"
	"github.com/unklstewy/plane-spotter/pkg/proximity"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitSetup  = 2
)

type options struct {
	configPath string
	envFile    string
	aircraft   string
	interval   time.Duration
	dryRun     bool
	tui        bool
	quiet      bool
}

// main checks where the tracked aircraft was last seen and announces the
// airport it is parked at, once or on a schedule with -interval.
func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/config.json", "Path to configuration file")
	flag.StringVar(&opts.envFile, "env", ".env", "Optional dotenv file loaded before the configuration")
	flag.StringVar(&opts.aircraft, "aircraft", "", "ICAO hex or ident to track (overrides aircraft_id)")
	flag.DurationVar(&opts.interval, "interval", 0, "Repeat every interval until interrupted (0 = run once)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Log the notification instead of sending it")
	flag.BoolVar(&opts.tui, "tui", false, "Show a live dashboard in watch mode")
	flag.BoolVar(&opts.quiet, "quiet", false, "Do not print the run summary")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, opts options, out io.Writer) int {
	if err := loadEnvFile(opts.envFile); err != nil {
		fmt.Fprintln(out, renderStartupError(err))
		return exitSetup
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(out, renderStartupError(err))
		return exitSetup
	}

	console := io.Writer(os.Stderr)
	if opts.tui && opts.interval > 0 {
		console = io.Discard
	}
	logger, logCloser, err := logging.NewWithConsole(cfg.Logging, console)
	if err != nil {
		fmt.Fprintln(out, renderStartupError(err))
		return exitSetup
	}
	defer logCloser.Close()

	logger.Info("starting",
		"tracking_backend", cfg.Tracking.Backend,
		"notification_backend", cfg.Notification.Backend,
		"aircraft", cfg.AircraftID)

	app, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		fmt.Fprintln(out, renderStartupError(err))
		return exitSetup
	}
	defer app.close()

	if opts.interval > 0 {
		return app.watch(ctx, cfg, opts, out)
	}

	report, err := app.spotter.Run(ctx)
	app.pushMetrics(cfg.Metrics)
	if !opts.quiet {
		fmt.Fprintln(out, renderReport(report))
	}
	if err != nil {
		return exitFailed
	}
	return exitOK
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Read(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.aircraft != "" {
		cfg.AircraftID = strings.TrimSpace(opts.aircraft)
	}
	if opts.dryRun {
		cfg.Notification.Backend = config.NotifyLog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds everything built from the configuration.
type app struct {
	logger  *slog.Logger
	spotter *spotter.Spotter
	metrics *telemetry.Metrics
	source  adsb.Source
	store   *db.Store
}

func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	catalog, err := airports.LoadFile(cfg.Proximity.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("airport catalog loaded", "path", cfg.Proximity.CatalogPath, "airports", catalog.Len())

	resolver, err := proximity.NewCachedResolver(catalog, cfg.Proximity.CacheSize)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, metrics: telemetry.New()}

	adsbDeps := adsb.Deps{Logger: logger}
	notifyDeps := notify.Deps{Logger: logger}
	var recorder spotter.Recorder
	var beforeRun func(context.Context) error

	if cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, 3, time.Second, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		a.store = db.NewStore(database, cfg.Database.Retention(), logger)

		adsbDeps.Positions = a.store
		notifyDeps.Notifications = a.store
		recorder = a.store
		beforeRun = a.store.Maintain
		logger.Info("database connected", "host", cfg.Database.Host, "database", cfg.Database.Database)
	}

	source, err := adsb.NewSource(cfg.Tracking, adsbDeps)
	if err != nil {
		a.close()
		return nil, err
	}
	a.source = source

	sink, err := notify.NewSink(cfg.Notification, notifyDeps)
	if err != nil {
		a.close()
		return nil, err
	}

	// The database backend reads positions back; recording them again
	// would only duplicate rows
	if cfg.Tracking.Backend == config.TrackingDatabase {
		recorder = nil
	}

	a.spotter, err = spotter.New(spotter.Options{
		Source:        source,
		Sink:          sink,
		Resolver:      resolver,
		AircraftID:    cfg.AircraftID,
		MaxDistanceKm: cfg.Proximity.MaxDistanceKm,
		Logger:        logger,
		Metrics:       a.metrics,
		Recorder:      recorder,
		BeforeRun:     beforeRun,
		FetchTimeout:  callTimeout(cfg.Tracking.Timeout(), cfg.Tracking.MaxRetries),
		SendTimeout:   callTimeout(cfg.Notification.Timeout(), cfg.Notification.MaxRetries),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// callTimeout bounds a whole backend call including its retries.
func callTimeout(timeout time.Duration, retries int) time.Duration {
	attempts := time.Duration(retries + 1)
	return attempts * (timeout + adsb.DefaultRetryConfig().MaxDelay)
}

func (a *app) watch(ctx context.Context, cfg *config.Config, opts options, out io.Writer) int {
	onReport := func(r spotter.Report) {
		a.pushMetrics(cfg.Metrics)
		if !opts.tui && !opts.quiet {
			fmt.Fprintln(out, reportLine(r))
		}
	}

	a.logger.Info("watching", "interval", opts.interval)

	var err error
	if opts.tui {
		err = runDashboard(ctx, a.spotter, cfg.AircraftID, opts.interval, onReport, a.summarizer(cfg.AircraftID))
	} else {
		err = a.spotter.Watch(ctx, opts.interval, onReport)
	}
	if err != nil {
		a.logger.Error("watch stopped", "error", err)
		return exitFailed
	}
	return exitOK
}

// summarizer returns the dashboard's database view, or nil without a
// database.
func (a *app) summarizer(aircraft string) func(context.Context) (db.Summary, error) {
	if a.store == nil {
		return nil
	}
	return func(ctx context.Context) (db.Summary, error) {
		return a.store.Summary(ctx, aircraft, time.Now().Add(-trackWindow), historySize)
	}
}

func (a *app) pushMetrics(cfg config.MetricsConfig) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx, cfg.PushgatewayURL, cfg.Job); err != nil {
		a.logger.Warn("failed to push metrics", "error", err)
	}
}

func (a *app) close() {
	if a.source != nil {
		a.source.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
