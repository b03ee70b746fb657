// Package store implements persistent access to every entity in the data
// model (spec §3) directly on top of sqlx/pgx, mirroring the
// one-service-per-entity layout of pkg/services in the teacher repo but
// consolidated behind a single Store handle, the way pkg/database/client.go
// hands out one pooled connection for every concern.
package store

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/database"
)

// Store is the single handle through which every package above it
// (toolsurface, orchestrator, intervention, quality, api) reaches
// Postgres. It is safe for concurrent use: every method opens its own
// statement or transaction against the underlying pool.
type Store struct {
	db *retryingDB
}

// New wraps a *database.Client for store access.
func New(client *database.Client) *Store {
	return &Store{db: newRetryingDB(client.DB, database.DefaultRetryPolicy())}
}

// NewFromSQLX wraps an already-open *sqlx.DB directly, for tests that hand
// in a go-sqlmock connection without standing up a database.Client.
func NewFromSQLX(db *sqlx.DB) *Store {
	return &Store{db: newRetryingDB(db, database.DefaultRetryPolicy())}
}

// DB exposes the underlying *sql.DB for health checks (pkg/api's
// healthHandler, mirroring TARSy's own health.go pinging s.dbClient.DB()).
func (s *Store) DB() *sql.DB {
	return s.db.DB.DB
}

// retryingDB wraps *sqlx.DB so every direct Exec/Get/Select/NamedExec call
// made by a store method automatically retries a transient failure with
// exponential backoff, per pkg/database.RetryPolicy (spec §4.1's Store
// requirement, spec §4.7's "Store failure during mutation -> retried per
// C1 policy"). Embedding *sqlx.DB keeps every other passthrough (Connx for
// advisory locks, the raw *sql.DB accessor) working unchanged.
type retryingDB struct {
	*sqlx.DB
	policy database.RetryPolicy
}

func newRetryingDB(db *sqlx.DB, policy database.RetryPolicy) *retryingDB {
	return &retryingDB{DB: db, policy: policy}
}

func (d *retryingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		var execErr error
		res, execErr = d.DB.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (d *retryingDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.policy.Do(ctx, func(ctx context.Context) error {
		return d.DB.GetContext(ctx, dest, query, args...)
	})
}

func (d *retryingDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.policy.Do(ctx, func(ctx context.Context) error {
		return d.DB.SelectContext(ctx, dest, query, args...)
	})
}

func (d *retryingDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	var res sql.Result
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		var execErr error
		res, execErr = d.DB.NamedExecContext(ctx, query, arg)
		return execErr
	})
	return res, err
}

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise. This is the store's `transaction` operation from spec
// §4.1, grounded on the tx/defer-rollback shape of
// pkg/services/session_service.go's CreateSession. The whole begin/fn/commit
// unit is retried together on a transient failure, since retrying a single
// statement inside an already-aborted transaction is unsafe.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.db.policy.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.DB.BeginTxx(ctx, nil)
		if err != nil {
			return apperrors.Wrap(apperrors.StorageError, err, "begin transaction")
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.StorageError, err, "commit transaction")
		}
		return nil
	})
}

// classify maps a raw driver error to an apperrors.Kind, distinguishing a
// unique-constraint violation (Conflict) from everything else
// (StorageError). By the time an error reaches classify, retryingDB has
// already retried it if it was transient (pkg/database/retry.go), so a
// StorageError here is a final, non-recoverable failure.
func classify(err error, context string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if asPgError(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.Wrap(apperrors.Conflict, err, "%s", context)
	}
	return apperrors.Wrap(apperrors.StorageError, err, "%s", context)
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			*target = pgErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func notFound(entity string, args ...any) error {
	return apperrors.New(apperrors.NotFound, "%s not found: %v", entity, args)
}
