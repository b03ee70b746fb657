package orchestrator

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

func newMockSchedulerStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewFromSQLX(sqlx.NewDb(db, "pgx")), mock
}

func TestProjectScheduler_ProjectCompleteReportsTrueWhenAllTasksDone(t *testing.T) {
	st, mock := newMockSchedulerStore(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests"}).
			AddRow(2, 2, 5, 5, 3, 3))

	ps := &projectScheduler{opts: Options{Store: st}, project: &models.Project{ID: "proj-1"}}
	done, err := ps.projectComplete(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectScheduler_ProjectCompleteReportsFalseWithRemainingTasks(t *testing.T) {
	st, mock := newMockSchedulerStore(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests"}).
			AddRow(2, 1, 5, 3, 3, 2))

	ps := &projectScheduler{opts: Options{Store: st}, project: &models.Project{ID: "proj-1"}}
	done, err := ps.projectComplete(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestProjectScheduler_ProjectCompleteFalseWhenNoTasksYet(t *testing.T) {
	st, mock := newMockSchedulerStore(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests"}).
			AddRow(0, 0, 0, 0, 0, 0))

	ps := &projectScheduler{opts: Options{Store: st}, project: &models.Project{ID: "proj-1"}}
	done, err := ps.projectComplete(context.Background())
	require.NoError(t, err)
	assert.False(t, done, "a project with zero tasks created yet is not complete")
}

func TestProjectScheduler_PauseReturnsFalseWithoutARunningEngine(t *testing.T) {
	ps := &projectScheduler{opts: Options{Config: &config.Config{}}, project: &models.Project{ID: "proj-1"}}
	assert.False(t, ps.pause(context.Background(), "operator request"))
}

func TestProjectScheduler_RequestStopAfterCurrentIsIdempotent(t *testing.T) {
	ps := &projectScheduler{project: &models.Project{ID: "proj-1"}}
	assert.False(t, ps.stopRequested)
	ps.requestStopAfterCurrent()
	ps.requestStopAfterCurrent()
	assert.True(t, ps.stopRequested)
}
