package database

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// recoverablePgCodes are the Postgres SQLSTATE classes worth retrying:
// connection failures, serialization/deadlock conflicts, and transient
// resource exhaustion. Anything else (syntax errors, constraint
// violations, permission errors) is permanent and must surface
// immediately rather than be retried into a longer outage.
var recoverablePgCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53000": true, // insufficient_resources
	"53100": true, // disk_full
	"53200": true, // out_of_memory
	"53300": true, // too_many_connections
	"53400": true, // configuration_limit_exceeded
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"58000": true, // system_error
	"58030": true, // io_error
	"XX000": true, // internal_error (pgbouncer/proxy resets surface here)
}

// IsRecoverable reports whether err is a transient condition worth
// retrying: a classified Postgres error code, a network-level failure, or
// a context deadline exceeded while waiting on the server.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return recoverablePgCodes[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// RetryPolicy configures exponential backoff with jitter for store
// operations that hit a transient error.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64 // fraction of the delay to randomize, e.g. 0.2 for ±20%
}

// DefaultRetryPolicy is 5 retries, 100ms doubling to a 5s cap, ±20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Jitter:     0.2,
	}
}

// Do runs fn, retrying with exponential backoff while the returned error is
// recoverable, up to MaxRetries retries after the first attempt (so at most
// MaxRetries+1 calls to fn). It returns the last error seen if
// every attempt fails, or nil as soon as fn succeeds.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := p.BaseDelay

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRecoverable(lastErr) || attempt == p.MaxRetries {
			return lastErr
		}

		sleep := p.jittered(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	offset := (rand.Float64()*2 - 1) * spread // uniform in [-spread, +spread]
	jittered := float64(d) + offset
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
