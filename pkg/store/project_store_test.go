package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

func TestCreateProject_Success(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO projects").
		WithArgs(sqlmock.AnyArg(), "todo-app", "Build a todo list", models.ProjectStatusActive,
			models.ProjectTypeGreenfield, sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p, err := s.CreateProject(context.Background(), "todo-app", "Build a todo list", models.ProjectTypeGreenfield, nil)
	require.NoError(t, err)
	assert.Equal(t, "todo-app", p.Name)
	assert.Equal(t, models.ProjectStatusActive, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProject_DuplicateNameIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO projects").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.CreateProject(context.Background(), "todo-app", "spec", models.ProjectTypeGreenfield, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.Conflict, apperrors.KindOf(err))
}

func TestGetProject_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.|\n)* FROM projects WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "source_spec", "status", "project_type", "settings", "source_revision", "created_at",
		}))

	_, err := s.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err))
}

func TestGetProgress(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests",
	}).AddRow(3, 1, 10, 4, 12, 8)
	mock.ExpectQuery("SELECT(.|\n)*FROM epics(.|\n)*FROM tasks(.|\n)*FROM tests").
		WithArgs("proj-1").
		WillReturnRows(rows)

	progress, err := s.GetProgress(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalEpics)
	assert.Equal(t, 8, progress.PassingTests)
}
