package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestUpdateTest_IncrementsRetryCountOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE tests(.|\n)*SET passed(.|\n)*retry_count = retry_count \\+ CASE").
		WithArgs(false, "assertion failed", 120, "", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateTest(context.Background(), 7, TestResult{
		Passed:          false,
		LastError:       "assertion failed",
		ExecutionTimeMs: 120,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllResolvedForTask_AllResolved(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT count(.|\n)*FROM tests WHERE project_id(.|\n)*owner_kind = 'task' AND task_id").
		WithArgs("proj-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT count(.|\n)*FROM tests(.|\n)*passed IS NULL").
		WithArgs("proj-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	resolved, total, err := s.AllResolvedForTask(context.Background(), "proj-1", 5)
	require.NoError(t, err)
	require.True(t, resolved)
	require.Equal(t, 2, total)
}
