package api

import (
	"errors"
	"net/http"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/extraction"
	"github.com/ignite/lead-import/internal/pkg/httputil"
	"github.com/ignite/lead-import/internal/pkg/logger"
	"github.com/ignite/lead-import/internal/service/leadimport"
	"github.com/ignite/lead-import/internal/storage"
)

// =============================================================================
// ERROR SANITIZER
// Maps service errors onto HTTP statuses. 4xx messages describe the user's
// input and are returned as is; anything else is logged server-side and
// answered with a generic message.
// =============================================================================

// statusFor returns the HTTP status for a service error and whether its
// message is safe to show.
func statusFor(err error) (int, bool) {
	var verr *leadimport.ValidationError
	switch {
	case errors.Is(err, datanorm.ErrUnsupportedFormat), errors.Is(err, datanorm.ErrEmptyFile),
		errors.Is(err, extraction.ErrRejected):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, leadimport.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, true
	case errors.Is(err, leadimport.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, leadimport.ErrInvalidTransition), errors.Is(err, leadimport.ErrCommitInProgress):
		return http.StatusConflict, true
	case errors.As(err, &verr):
		return http.StatusBadRequest, true
	case errors.Is(err, leadimport.ErrNoStorage), errors.Is(err, leadimport.ErrNoExtractor):
		return http.StatusNotImplemented, true
	case errors.Is(err, leadimport.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, false
	default:
		return http.StatusInternalServerError, false
	}
}

// respondServiceError writes err with the status statusFor picks.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, safe := statusFor(err)
	if code == http.StatusInternalServerError {
		httputil.InternalError(w, err)
		return
	}
	if !safe {
		logger.Error("request failed", "path", r.URL.Path, "status", code, "error", err)
		httputil.Error(w, code, http.StatusText(code))
		return
	}
	httputil.Error(w, code, err.Error())
}
