package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// pauseSessionHandler handles POST /api/v1/sessions/:id/pause (spec §6's
// PauseSession). Resolves the owning project from the session, then
// routes the pause request to that project's running Intervention Engine.
func (s *Server) pauseSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	var req PauseSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reason == "" {
		req.Reason = "operator request via " + extractAuthor(c)
	}

	session, err := s.store.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	if err := s.orch.PauseSession(c.Request().Context(), session.ProjectID, req.Reason); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Message: "pause requested"})
}

// resumeSessionHandler handles POST /api/v1/sessions/:id/resume (spec §6's
// ResumeSession).
func (s *Server) resumeSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	var req ResumeSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	session, err := s.store.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	resolvedBy := extractAuthor(c)
	if err := s.orch.ResumeSession(c.Request().Context(), session.ProjectID, sessionID, resolvedBy, req.Notes); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Message: "session resumed"})
}

// listInterventionsHandler handles GET /api/v1/interventions (spec §6's
// ListInterventions). The spec's optional filter is left unapplied here —
// callers get every unresolved paused session across all projects and
// filter client-side, same as the dashboard polling pattern TARSy's own
// active-sessions endpoint uses.
func (s *Server) listInterventionsHandler(c *echo.Context) error {
	interventions, err := s.orch.ListInterventions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, interventions)
}
