package toolsurface

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

func TestHandleUpdateTaskStatus_DoneWithUnresolvedTestsIsQualityViolation(t *testing.T) {
	s, mock := newMockSurface(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE project_id = \\$1 AND owner_kind = 'task' AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests(.|\n)*passed IS NULL").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	params, _ := json.Marshal(updateTaskStatusParams{TaskID: 4, Done: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_status", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.QualityViolation, apperrors.KindOf(err))
}

func TestHandleUpdateTaskStatus_RejectedByInstalledQualityGate(t *testing.T) {
	s, mock := newMockSurface(t)
	s.SetQualityGate("sess-1", &stubGate{err: apperrors.New(apperrors.QualityViolation, "ui task missing browser verification")})

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE project_id = \\$1 AND owner_kind = 'task' AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests(.|\n)*passed IS NULL").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	params, _ := json.Marshal(updateTaskStatusParams{TaskID: 4, Done: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_status", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.QualityViolation, apperrors.KindOf(err))
}

func TestHandleUpdateTaskStatus_NotDoneSkipsTestAndGateChecks(t *testing.T) {
	s, mock := newMockSurface(t)
	s.SetQualityGate("sess-1", &stubGate{err: apperrors.New(apperrors.QualityViolation, "should never be consulted")})

	mock.ExpectQuery("SELECT \\* FROM tasks WHERE project_id = \\$1 AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{
			"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
			"started_at", "completed_at", "metadata", "started_by_session_id",
		}).AddRow(1, "proj-1", 4, "desc", "action", 1, false, nil, nil, nil, ""))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks SET done = \\$1, completed_at = \\$2").
		WithArgs(false, sqlmock.AnyArg(), "proj-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	params, _ := json.Marshal(updateTaskStatusParams{TaskID: 4, Done: false})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_status", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)
}

func TestHandleUpdateTaskStatus_DoneCompletesEpicWhenLastTaskAndTestsPass(t *testing.T) {
	s, mock := newMockSurface(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE project_id = \\$1 AND owner_kind = 'task' AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests(.|\n)*passed IS NULL").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT \\* FROM tasks WHERE project_id = \\$1 AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{
			"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
			"started_at", "completed_at", "metadata", "started_by_session_id",
		}).AddRow(1, "proj-1", 4, "desc", "action", 1, false, nil, nil, nil, "sess-1"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks SET done = \\$1, completed_at = \\$2").
		WithArgs(true, sqlmock.AnyArg(), "proj-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tasks WHERE project_id = \\$1 AND epic_id = \\$2 AND NOT done").
		WithArgs("proj-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests(.|\n)*owner_kind = 'epic'").
		WithArgs("proj-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE epics SET status = \\$1 WHERE project_id = \\$2 AND epic_id = \\$3").
		WithArgs(models.EpicStatusCompleted, "proj-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params, _ := json.Marshal(updateTaskStatusParams{TaskID: 4, Done: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_status", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpdateTaskTestResult_PassedWithoutVerificationNotesIsValidationError(t *testing.T) {
	s, _ := newMockSurface(t)

	params, _ := json.Marshal(updateTaskTestResultParams{TestID: 7, Passed: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_test_result", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestHandleUpdateTaskTestResult_FailedWithoutErrorIsValidationError(t *testing.T) {
	s, _ := newMockSurface(t)

	params, _ := json.Marshal(updateTaskTestResultParams{TestID: 7, Passed: false})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_test_result", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestHandleUpdateTaskTestResult_PassedWithVerificationNotesSucceeds(t *testing.T) {
	s, mock := newMockSurface(t)
	mock.ExpectExec("UPDATE tests").
		WithArgs(true, "", 0, "verified in browser", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params, _ := json.Marshal(updateTaskTestResultParams{TestID: 7, Passed: true, VerificationNotes: "verified in browser"})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_task_test_result", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)
}

func TestHandleUpdateEpicTestResult_PassingCompletesEpicWhenAllTasksDone(t *testing.T) {
	s, mock := newMockSurface(t)

	mock.ExpectQuery("SELECT \\* FROM tests WHERE id = \\$1").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "owner_kind", "epic_id", "task_id", "category", "description",
			"requirements", "passed", "last_error", "execution_time_ms", "retry_count", "verification_notes",
		}).AddRow(9, "proj-1", "epic", 1, nil, "integration", "desc", "reqs", nil, "", 0, 0, ""))
	mock.ExpectExec("UPDATE tests").
		WithArgs(true, "", 0, "", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tasks WHERE project_id = \\$1 AND epic_id = \\$2 AND NOT done").
		WithArgs("proj-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests(.|\n)*owner_kind = 'epic'").
		WithArgs("proj-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE epics SET status = \\$1 WHERE project_id = \\$2 AND epic_id = \\$3").
		WithArgs(models.EpicStatusCompleted, "proj-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params, _ := json.Marshal(updateEpicTestResultParams{EpicTestID: 9, Passed: true})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "update_epic_test_result", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStartTask_DelegatesToStore(t *testing.T) {
	s, mock := newMockSurface(t)
	mock.ExpectExec("UPDATE tasks SET started_at").
		WithArgs(sqlmock.AnyArg(), "sess-1", "proj-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM tasks WHERE project_id = \\$1 AND task_id = \\$2").
		WithArgs("proj-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{
			"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
			"started_at", "completed_at", "metadata", "started_by_session_id",
		}).AddRow(1, "proj-1", 4, "desc", "action", 1, false, nil, nil, nil, "sess-1"))
	mock.ExpectExec("UPDATE epics SET status = \\$1 WHERE project_id = \\$2 AND epic_id = \\$3 AND status = \\$4").
		WithArgs(models.EpicStatusInProgress, "proj-1", 1, models.EpicStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params, _ := json.Marshal(startTaskParams{TaskID: 4})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "start_task", Params: params}}

	result, err := s.Dispatch(context.Background(), call, nil)
	require.NoError(t, err)
	res, ok := result.(startTaskResult)
	require.True(t, ok)
	assert.True(t, res.OK)
}
