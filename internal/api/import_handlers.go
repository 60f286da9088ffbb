package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/pkg/httputil"
	"github.com/ignite/lead-import/internal/pkg/logger"
	"github.com/ignite/lead-import/internal/service/leadimport"
	"github.com/ignite/lead-import/internal/storage"
)

// =============================================================================
// LEAD IMPORT HANDLERS
// =============================================================================
// HTTP handlers for the import wizard:
// - Upload a file (multipart), an archived S3 key, extraction records or a screenshot
// - Preview and remap columns
// - Commit with a duplicate policy, poll progress, fetch the outcome
// - Cancel

// multipartOverhead is added to the file limit for form boundaries and fields.
const multipartOverhead = 1 << 20

// PendingLister lists uploads waiting in the archive.
type PendingLister interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	UploadPrefix(orgID string) string
}

// ImportHandlers provides HTTP handlers for lead imports.
type ImportHandlers struct {
	service *leadimport.Service
	pending PendingLister
}

// NewImportHandlers creates a new handler instance. pending may be nil when
// no archive is configured.
func NewImportHandlers(service *leadimport.Service, pending PendingLister) *ImportHandlers {
	return &ImportHandlers{service: service, pending: pending}
}

// RegisterRoutes registers the import routes.
func (h *ImportHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/import/fields", h.HandleGetFields)
	r.Get("/import/jobs", h.HandleListJobs)

	r.Route("/imports", func(r chi.Router) {
		r.Post("/", h.HandleUpload)
		r.Get("/s3", h.HandleListPending)
		r.Post("/s3", h.HandleUploadFromS3)
		r.Post("/extracted", h.HandleUploadExtracted)
		r.Post("/screenshot", h.HandleUploadScreenshot)

		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/mapping", h.HandleRemap)
		r.Post("/{id}/commit", h.HandleCommit)
		r.Get("/{id}/progress", h.HandleProgress)
		r.Get("/{id}/outcome", h.HandleOutcome)
		r.Delete("/{id}", h.HandleCancel)
	})
}

// =============================================================================
// UPLOAD ENDPOINTS
// =============================================================================

// HandleUpload decodes an uploaded file into a new session.
// POST /api/v1/imports (multipart/form-data, field "file")
func (h *ImportHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, ok := h.readFormFile(w, r, "file")
	if !ok {
		return
	}
	orgID := OrgIDFromRequest(r)
	sess, err := h.service.Upload(r.Context(), orgID, filename, contentType, data)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, h.service.Preview(sess))
}

// UploadFromS3Request names an archived upload.
type UploadFromS3Request struct {
	Key string `json:"key"`
}

// HandleUploadFromS3 starts a session from an upload already in the archive.
// POST /api/v1/imports/s3
func (h *ImportHandlers) HandleUploadFromS3(w http.ResponseWriter, r *http.Request) {
	var req UploadFromS3Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		httputil.BadRequest(w, "key is required")
		return
	}
	sess, err := h.service.UploadFromArchive(r.Context(), OrgIDFromRequest(r), req.Key)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, h.service.Preview(sess))
}

// HandleListPending lists the organization's uploads not yet imported.
// GET /api/v1/imports/s3
func (h *ImportHandlers) HandleListPending(w http.ResponseWriter, r *http.Request) {
	if h.pending == nil {
		respondServiceError(w, r, leadimport.ErrNoStorage)
		return
	}
	objects, err := h.pending.List(r.Context(), h.pending.UploadPrefix(OrgIDFromRequest(r)))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if objects == nil {
		objects = []storage.Object{}
	}
	httputil.OK(w, map[string]interface{}{"uploads": objects})
}

// UploadExtractedRequest carries records from the extraction service.
type UploadExtractedRequest struct {
	Records []datanorm.ExtractedContact `json:"records"`
}

// HandleUploadExtracted starts a session from extraction records.
// POST /api/v1/imports/extracted
func (h *ImportHandlers) HandleUploadExtracted(w http.ResponseWriter, r *http.Request) {
	var req UploadExtractedRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		httputil.Unprocessable(w, "records must not be empty")
		return
	}
	sess, err := h.service.UploadExtracted(r.Context(), OrgIDFromRequest(r), req.Records)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, h.service.Preview(sess))
}

// HandleUploadScreenshot sends an image through extraction.
// POST /api/v1/imports/screenshot (multipart/form-data, field "image")
func (h *ImportHandlers) HandleUploadScreenshot(w http.ResponseWriter, r *http.Request) {
	data, _, contentType, ok := h.readFormFile(w, r, "image")
	if !ok {
		return
	}
	sess, err := h.service.UploadScreenshot(r.Context(), OrgIDFromRequest(r), data, contentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, h.service.Preview(sess))
}

// readFormFile reads one multipart file field, enforcing the upload limit.
func (h *ImportHandlers) readFormFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, string, bool) {
	limit := h.service.Settings().MaxFileBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondServiceError(w, r, leadimport.ErrFileTooLarge)
			return nil, "", "", false
		}
		httputil.BadRequest(w, "invalid multipart form")
		return nil, "", "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("%s is required", field))
		return nil, "", "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "failed to read upload")
		return nil, "", "", false
	}
	return data, header.Filename, header.Header.Get("Content-Type"), true
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// HandleGet returns the session state and preview.
// GET /api/v1/imports/{id}
func (h *ImportHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), OrgIDFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, h.service.Preview(sess))
}

// HandleRemap applies a {field: header|null} patch and re-normalizes.
// PUT /api/v1/imports/{id}/mapping
func (h *ImportHandlers) HandleRemap(w http.ResponseWriter, r *http.Request) {
	var patch map[datanorm.CanonicalField]*string
	if !httputil.Decode(w, r, &patch) {
		return
	}
	if len(patch) == 0 {
		httputil.BadRequest(w, "mapping patch must not be empty")
		return
	}
	sess, err := h.service.Remap(r.Context(), OrgIDFromRequest(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, h.service.Preview(sess))
}

// CommitResponse is the result of a commit: the bounded summary plus the
// full outcome.
type CommitResponse struct {
	SessionID string                `json:"session_id"`
	Summary   leadimport.Summary    `json:"summary"`
	Outcome   *domain.ImportOutcome `json:"outcome"`
}

// HandleCommit resolves and imports the session. The body is optional.
// POST /api/v1/imports/{id}/commit
func (h *ImportHandlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var opts leadimport.CommitOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	outcome, err := h.service.Commit(r.Context(), OrgIDFromRequest(r), id, opts)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, CommitResponse{
		SessionID: id,
		Summary:   h.service.Summarize(*outcome),
		Outcome:   outcome,
	})
}

// HandleProgress returns the latest progress snapshot.
// GET /api/v1/imports/{id}/progress
func (h *ImportHandlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Progress(r.Context(), OrgIDFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, p)
}

// HandleOutcome returns the stored outcome of a committed session.
// GET /api/v1/imports/{id}/outcome
func (h *ImportHandlers) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := h.service.Outcome(r.Context(), OrgIDFromRequest(r), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, CommitResponse{
		SessionID: id,
		Summary:   h.service.Summarize(*outcome),
		Outcome:   outcome,
	})
}

// HandleCancel cancels a session, or stops its running import.
// DELETE /api/v1/imports/{id}
func (h *ImportHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(r.Context(), OrgIDFromRequest(r), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	logger.Info("import session cancelled", "session", id)
	httputil.NoContent(w)
}

// =============================================================================
// REFERENCE ENDPOINTS
// =============================================================================

// HandleGetFields returns the canonical fields and the keyword dictionary.
// GET /api/v1/import/fields
func (h *ImportHandlers) HandleGetFields(w http.ResponseWriter, r *http.Request) {
	settings := h.service.Settings()
	httputil.OK(w, map[string]interface{}{
		"fields":          datanorm.CanonicalFields,
		"required_fields": []datanorm.CanonicalField{datanorm.FieldName},
		"dictionary":      h.service.Mapper().Dictionary(),
		"defaults": map[string]interface{}{
			"status":          settings.DefaultStatus,
			"temperature":     settings.DefaultTemperature,
			"skip_duplicates": settings.Policy.SkipDuplicates,
			"update_existing": settings.Policy.UpdateExisting,
			"followup_days":   settings.FollowUpDays,
		},
	})
}

// HandleListJobs lists recent committed imports.
// GET /api/v1/import/jobs?limit=20
func (h *ImportHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	jobs, err := h.service.Jobs(r.Context(), OrgIDFromRequest(r), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ImportJob{}
	}
	httputil.OK(w, map[string]interface{}{"jobs": jobs})
}
