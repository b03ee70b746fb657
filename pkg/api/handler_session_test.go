package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseSessionHandler_NotFoundWhenSessionUnknown(t *testing.T) {
	s, mock := newTestServer(t)
	s.setupRoutes()
	mock.ExpectQuery(`SELECT \* FROM sessions`).WillReturnRows(sqlmock.NewRows(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/missing/pause", strings.NewReader(`{"reason":"stuck"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeSessionHandler_NotFoundWhenSessionUnknown(t *testing.T) {
	s, mock := newTestServer(t)
	s.setupRoutes()
	mock.ExpectQuery(`SELECT \* FROM sessions`).WillReturnRows(sqlmock.NewRows(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/missing/resume", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInterventionsHandler_ReturnsEmptyListWithNoUnresolvedPauses(t *testing.T) {
	s, mock := newTestServer(t)
	s.setupRoutes()
	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interventions", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
