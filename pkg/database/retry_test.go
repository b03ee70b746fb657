package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRecoverable(t *testing.T) {
	assert.False(t, IsRecoverable(nil))
	assert.False(t, IsRecoverable(errors.New("boom")))
	assert.True(t, IsRecoverable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRecoverable(&pgconn.PgError{Code: "23505"})) // unique_violation
	assert.True(t, IsRecoverable(context.DeadlineExceeded))
}

func TestRetryPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: 0}

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_Do_StopsOnNonRecoverableError(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: 0}

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "23505"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_Do_ExhaustsRetries(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: 0.2}

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}
