package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

// mapServiceError maps an apperrors.Kind to an HTTP status code, the same
// translation TARSy's pkg/api/errors.go performs for its own service errors.
func mapServiceError(err error) *echo.HTTPError {
	switch apperrors.KindOf(err) {
	case apperrors.Validation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperrors.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperrors.Conflict:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case apperrors.QualityViolation, apperrors.BlockedCommand:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case apperrors.SandboxError, apperrors.StorageError, apperrors.TransientExternal:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("unexpected orchestrator error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
