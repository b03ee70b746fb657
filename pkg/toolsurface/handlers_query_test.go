package toolsurface

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

func newMockSurface(t *testing.T) (*Surface, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.NewFromSQLX(sqlx.NewDb(db, "pgx"))
	mgr := sandbox.NewManager(config.SandboxConfig{Type: config.SandboxTypeNone}, t.TempDir(), sandbox.NewBlocklist())
	return New(st, mgr, events.NewBus(), &config.Config{}), mock
}

func TestHandleListTasks_OnlyPendingFiltersDoneTasks(t *testing.T) {
	s, mock := newMockSurface(t)

	rows := sqlmock.NewRows([]string{
		"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
		"started_at", "completed_at", "metadata", "started_by_session_id",
	}).
		AddRow(1, "proj-1", 1, "Add login form", "", 1, false, nil, nil, []byte("{}"), "").
		AddRow(1, "proj-1", 2, "Wire up logout", "", 2, true, nil, nil, []byte("{}"), "")

	mock.ExpectQuery("SELECT \\* FROM tasks WHERE project_id = \\$1 AND epic_id = \\$2").
		WithArgs("proj-1", 1).
		WillReturnRows(rows)

	params, _ := json.Marshal(listTasksParams{EpicID: 1, OnlyPending: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "list_tasks", Params: params}}

	result, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)

	tasks, ok := result.([]*models.Task)
	require.True(t, ok)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].TaskID)
}

func TestHandleTaskStatus_ReturnsProgressFromStore(t *testing.T) {
	s, mock := newMockSurface(t)

	rows := sqlmock.NewRows([]string{
		"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests",
	}).AddRow(5, 2, 20, 8, 15, 10)
	mock.ExpectQuery("SELECT(.|\n)*FROM epics(.|\n)*FROM tasks(.|\n)*FROM tests").
		WithArgs("proj-1").
		WillReturnRows(rows)

	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "task_status"}}

	result, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)

	progress, ok := result.(*models.Progress)
	require.True(t, ok)
	assert.Equal(t, 5, progress.TotalEpics)
	assert.Equal(t, 10, progress.PassingTests)
}

func TestHandleListTests_RequiresTaskOrEpicID(t *testing.T) {
	s, _ := newMockSurface(t)
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "list_tests", Params: json.RawMessage(`{}`)}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
}
