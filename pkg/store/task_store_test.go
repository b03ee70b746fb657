package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTask_ReturnsLowestPriorityAmongEligibleEpics(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
		"started_at", "completed_at", "metadata", "started_by_session_id",
	}).AddRow(1, "proj-1", 3, "Add login form", "", 1, false, nil, nil, []byte("{}"), "")

	mock.ExpectQuery("SELECT t(.|\n)*FROM tasks t(.|\n)*JOIN epics").
		WithArgs("proj-1").
		WillReturnRows(rows)

	task, err := s.NextTask(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 3, task.TaskID)
	assert.False(t, task.Done)
}

func TestNextTask_NoneEligibleReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT t(.|\n)*FROM tasks t(.|\n)*JOIN epics").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
			"started_at", "completed_at", "metadata", "started_by_session_id",
		}))

	task, err := s.NextTask(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestStartTask_AlreadyStartedIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE tasks SET started_at").
		WithArgs(sqlmock.AnyArg(), "session-1", "proj-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.StartTask(context.Background(), "proj-1", 3, "session-1")
	require.Error(t, err)
}
