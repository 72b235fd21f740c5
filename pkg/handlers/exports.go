package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/auth"
	"github.com/ekaya-inc/bomdiff-engine/pkg/exports"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
	"github.com/ekaya-inc/bomdiff-engine/pkg/services"
)

// ExportHandler serves file downloads of completed comparisons.
type ExportHandler struct {
	diffJobService services.DiffJobService
	logger         *zap.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(diffJobService services.DiffJobService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		diffJobService: diffJobService,
		logger:         logger,
	}
}

// RegisterRoutes registers the export handler's routes on the given mux.
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/exports/csv/{jobId}", authMiddleware.RequireIdentity(h.DownloadCSV))
	mux.HandleFunc("GET /api/exports/excel/{jobId}", authMiddleware.RequireIdentity(h.DownloadExcel))
}

// DownloadCSV handles GET /api/exports/csv/{jobId}
func (h *ExportHandler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, exports.CSVContentType, exports.CSVFileName, exports.BuildCSV)
}

// DownloadExcel handles GET /api/exports/excel/{jobId}
func (h *ExportHandler) DownloadExcel(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, exports.ExcelContentType, exports.ExcelFileName, exports.BuildExcel)
}

func (h *ExportHandler) download(
	w http.ResponseWriter,
	r *http.Request,
	contentType string,
	fileName func(string) string,
	render func(*models.DiffExportPayload) ([]byte, error),
) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthenticated", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	jobID := r.PathValue("jobId")

	payload, err := h.diffJobService.GetRowsForExport(r.Context(), jobID, id.TenantID, id.UserID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	content, err := render(payload)
	if err != nil {
		WriteServiceError(w, fmt.Errorf("failed to render export for job %s: %w", payload.JobID, err), h.logger)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName(payload.JobID)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		h.logger.Error("Failed to write export", zap.String("job_id", payload.JobID), zap.Error(err))
	}
}
