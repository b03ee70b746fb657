package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// createProjectHandler handles POST /api/v1/projects (spec §6's
// CreateProject).
func (s *Server) createProjectHandler(c *echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	projectType := models.ProjectTypeGreenfield
	if req.Type != "" {
		projectType = models.ProjectType(req.Type)
		if projectType != models.ProjectTypeGreenfield && projectType != models.ProjectTypeBrownfield {
			return echo.NewHTTPError(http.StatusBadRequest, "type must be greenfield or brownfield")
		}
	}

	project, err := s.orch.CreateProject(c.Request().Context(), req.Name, req.Spec, projectType, req.Settings)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, project)
}

// initializeHandler handles POST /api/v1/projects/:id/initialize (spec
// §6's Initialize). Runs the initializer session synchronously and
// returns once it completes.
func (s *Server) initializeHandler(c *echo.Context) error {
	projectID := c.Param("id")
	if err := s.orch.Initialize(c.Request().Context(), projectID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Message: "project initialized"})
}

// startCodingHandler handles POST /api/v1/projects/:id/start (spec §6's
// StartCoding). Launches the project's auto-continue scheduler and
// returns immediately; refuses with conflict if a session is already
// running or the project hasn't been initialized yet.
func (s *Server) startCodingHandler(c *echo.Context) error {
	projectID := c.Param("id")
	if err := s.orch.StartCoding(c.Request().Context(), projectID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &OKResponse{Message: "coding started"})
}

// stopAfterCurrentHandler handles POST /api/v1/projects/:id/stop-after-current
// (spec §6's StopAfterCurrent).
func (s *Server) stopAfterCurrentHandler(c *echo.Context) error {
	projectID := c.Param("id")
	if err := s.orch.StopAfterCurrent(projectID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Message: "project will stop after the current session"})
}

// deleteProjectHandler handles DELETE /api/v1/projects/:id (spec §6's
// DeleteProject).
func (s *Server) deleteProjectHandler(c *echo.Context) error {
	projectID := c.Param("id")
	if err := s.orch.DeleteProject(c.Request().Context(), projectID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Message: "project deleted"})
}

// getProgressHandler handles GET /api/v1/projects/:id/progress (spec
// §6's GetProgress).
func (s *Server) getProgressHandler(c *echo.Context) error {
	projectID := c.Param("id")
	progress, err := s.orch.GetProgress(c.Request().Context(), projectID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, progress)
}

// triggerCompletionReviewHandler handles POST
// /api/v1/projects/:id/completion-review (spec §6's TriggerCompletionReview).
func (s *Server) triggerCompletionReviewHandler(c *echo.Context) error {
	projectID := c.Param("id")
	review, err := s.orch.TriggerCompletionReview(c.Request().Context(), projectID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, review)
}
