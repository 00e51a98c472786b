package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/unklstewy/plane-spotter/pkg/config"
)

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// This provides resilience against temporary database outages.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx ends)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or error if all retries exhausted
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	delay := initialDelay
	attempt := 0

	for {
		attempt++
		logger.Debug("database connection attempt", "attempt", attempt, "host", cfg.Host)

		db, err := Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				logger.Info("database reconnected", "attempts", attempt)
			}
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			logger.Error("database connection failed", "attempts", attempt, "error", err)
			return nil, err
		}

		logger.Warn("database connection failed", "error", err, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// EnsureConnection checks the connection with HealthCheck and reconnects
// in place when it is lost, so repositories built on db keep working. The
// old pool is closed only once a new one is up.
func (db *DB) EnsureConnection(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	err := HealthCheck(ctx, db)
	if err == nil {
		return nil
	}
	logger.Warn("database connection lost, reconnecting", "error", err)

	fresh, err := ReconnectWithRetry(ctx, db.config, 3, time.Second, logger)
	if err != nil {
		return err
	}
	if db.DB != nil {
		db.DB.Close()
	}
	db.DB = fresh.DB
	return nil
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return errors.New("no database connection")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}
	if result != 1 {
		return errors.New("unexpected health check result")
	}
	return nil
}

var connErrorPatterns = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"eof",
	"timeout",
	"bad connection",
}

// IsConnectionError reports whether err looks like a lost connection
// rather than a query error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry runs operation, retrying only connection failures with a
// linearly growing wait.
func WithRetry(ctx context.Context, operation func(context.Context) error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsConnectionError(err) {
			return err
		}

		if attempt < maxRetries {
			timer := time.NewTimer(time.Duration(attempt+1) * 100 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), err)
			case <-timer.C:
			}
		}
	}

	return lastErr
}
