package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/orchestrator"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

func newMockAPIStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewFromSQLX(sqlx.NewDb(db, "pgx")), mock
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	st, mock := newMockAPIStore(t)
	orch := orchestrator.New(orchestrator.Options{Store: st}, nil)
	return &Server{echo: echo.New(), orch: orch, store: st}, mock
}

func TestCreateProjectHandler_RejectsEmptyNameWithoutTouchingStore(t *testing.T) {
	s, mock := newTestServer(t)
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"","spec":"build a thing"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProjectHandler_RejectsUnknownProjectType(t *testing.T) {
	s, _ := newTestServer(t)
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"demo","spec":"x","type":"sidewaysfield"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProgressHandler_ReturnsProgressFromStore(t *testing.T) {
	s, mock := newTestServer(t)
	s.setupRoutes()

	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"total_epics", "completed_epics", "total_tasks", "completed_tasks", "total_tests", "passing_tests"}).
			AddRow(1, 1, 4, 2, 3, 3))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/progress", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed_tasks":2`)
}

func TestStopAfterCurrentHandler_NotFoundForUnscheduledProject(t *testing.T) {
	s, _ := newTestServer(t)
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/never-started/stop-after-current", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
