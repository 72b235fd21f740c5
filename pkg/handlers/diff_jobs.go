package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/apperrors"
	"github.com/ekaya-inc/bomdiff-engine/pkg/auth"
	"github.com/ekaya-inc/bomdiff-engine/pkg/config"
	"github.com/ekaya-inc/bomdiff-engine/pkg/logging"
	"github.com/ekaya-inc/bomdiff-engine/pkg/services"
)

// maxStartJobBody bounds the inline snapshots accepted by POST /api/diff-jobs.
const maxStartJobBody = 32 << 20

// ============================================================================
// Handler
// ============================================================================

// DiffJobHandler handles diff job HTTP requests.
type DiffJobHandler struct {
	diffJobService services.DiffJobService
	features       config.FeatureConfig
	logger         *zap.Logger
}

// NewDiffJobHandler creates a new diff job handler.
func NewDiffJobHandler(
	diffJobService services.DiffJobService,
	features config.FeatureConfig,
	logger *zap.Logger,
) *DiffJobHandler {
	return &DiffJobHandler{
		diffJobService: diffJobService,
		features:       features,
		logger:         logger,
	}
}

// RegisterRoutes registers the diff job handler's routes on the given mux.
func (h *DiffJobHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/diff-jobs"

	mux.HandleFunc("POST "+base, authMiddleware.RequireIdentity(h.StartJob))
	mux.HandleFunc("GET "+base+"/{jobId}", authMiddleware.RequireIdentity(h.GetStatus))
	mux.HandleFunc("GET "+base+"/{jobId}/rows", authMiddleware.RequireIdentity(h.GetRows))
}

// StartJob handles POST /api/diff-jobs
func (h *DiffJobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	if !h.featureEnabled(w, h.features.DiffEngineV1, "DIFF_ENGINE_V1", apperrors.CodeDiffEngineDisabled) {
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req services.StartJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxStartJobBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		message := "Invalid request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "Request body too large"
		}
		if err := ErrorResponse(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, message); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	req.TenantID = id.TenantID
	req.RequestedBy = id.UserID

	status, err := h.diffJobService.StartJob(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, status); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetStatus handles GET /api/diff-jobs/{jobId}
func (h *DiffJobHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if !h.featureEnabled(w, h.features.DiffProgressiveAPIV1, "DIFF_PROGRESSIVE_API_V1", apperrors.CodeProgressiveAPIDisabled) {
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	jobID := r.PathValue("jobId")

	status, err := h.diffJobService.GetStatus(r.Context(), jobID, id.TenantID)
	if err != nil {
		h.logFailure("Failed to get diff job status", jobID, id, err)
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetRows handles GET /api/diff-jobs/{jobId}/rows?cursor=&limit=
func (h *DiffJobHandler) GetRows(w http.ResponseWriter, r *http.Request) {
	if !h.featureEnabled(w, h.features.DiffProgressiveAPIV1, "DIFF_PROGRESSIVE_API_V1", apperrors.CodeProgressiveAPIDisabled) {
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	jobID := r.PathValue("jobId")
	query := r.URL.Query()

	page, err := h.diffJobService.GetRows(r.Context(), jobID, id.TenantID, query.Get("cursor"), parseLimit(query.Get("limit")))
	if err != nil {
		h.logFailure("Failed to get diff job rows", jobID, id, err)
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// parseLimit reads the page size. Missing or malformed values yield 0, which the service treats as its default.
func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Floor(v))
}

func (h *DiffJobHandler) featureEnabled(w http.ResponseWriter, flag config.FeatureFlag, name, code string) bool {
	if flag.Enabled() {
		return true
	}
	if err := ErrorResponse(w, http.StatusServiceUnavailable, code, name+" is disabled."); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
	return false
}

func (h *DiffJobHandler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthenticated", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return auth.Identity{}, false
	}
	return id, true
}

func (h *DiffJobHandler) logFailure(msg, jobID string, id auth.Identity, err error) {
	if apperrors.CodeOf(err) == "" {
		return
	}
	h.logger.Info(msg,
		zap.String("job_id", logging.SanitizeValue(jobID)),
		zap.String("tenant_id", id.TenantID),
		zap.String("code", apperrors.CodeOf(err)))
}
