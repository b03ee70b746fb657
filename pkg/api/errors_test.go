package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

func TestMapServiceError_TranslatesEachKindToExpectedStatus(t *testing.T) {
	cases := []struct {
		kind   apperrors.Kind
		status int
	}{
		{apperrors.Validation, http.StatusBadRequest},
		{apperrors.NotFound, http.StatusNotFound},
		{apperrors.Conflict, http.StatusConflict},
		{apperrors.QualityViolation, http.StatusUnprocessableEntity},
		{apperrors.BlockedCommand, http.StatusUnprocessableEntity},
		{apperrors.SandboxError, http.StatusServiceUnavailable},
		{apperrors.StorageError, http.StatusServiceUnavailable},
		{apperrors.TransientExternal, http.StatusServiceUnavailable},
		{apperrors.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		err := apperrors.New(tc.kind, "boom")
		httpErr := mapServiceError(err)
		assert.Equal(t, tc.status, httpErr.Code, "kind %s", tc.kind)
	}
}

func TestMapServiceError_TreatsUnwrappedErrorAsInternal(t *testing.T) {
	httpErr := mapServiceError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
}
