package store

import (
	"context"
	"hash/fnv"

	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

// ProjectLock is a session-scoped Postgres advisory lock serializing
// session creation for one project (spec §4.1's acquire_project_lock,
// spec §5: "no two concurrent sessions for one project can exist").
type ProjectLock struct {
	conn *sqlx.Conn
	key  int64
}

// AcquireProjectLock blocks until it holds the advisory lock for
// projectID, checking out a dedicated connection from the pool for the
// lock's lifetime (Postgres session-level advisory locks are tied to the
// connection that took them, not to a transaction).
func (s *Store) AcquireProjectLock(ctx context.Context, projectID string) (*ProjectLock, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StorageError, err, "checkout lock connection")
	}

	key := lockKey(projectID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.StorageError, err, "acquire project lock")
	}

	return &ProjectLock{conn: conn, key: key}, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
func (l *ProjectLock) Release(ctx context.Context) error {
	defer func() { _ = l.conn.Close() }()
	if _, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		return apperrors.Wrap(apperrors.StorageError, err, "release project lock")
	}
	return nil
}

// lockKey derives a stable int64 advisory-lock key from a project ID.
func lockKey(projectID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(projectID))
	return int64(h.Sum64())
}
