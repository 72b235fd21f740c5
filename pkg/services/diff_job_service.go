package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/apperrors"
	"github.com/ekaya-inc/bomdiff-engine/pkg/audit"
	"github.com/ekaya-inc/bomdiff-engine/pkg/logging"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
	"github.com/ekaya-inc/bomdiff-engine/pkg/services/diff"
)

// Progressive delivery policy.
const (
	revealStepInterval = 600 * time.Millisecond
	revealStepDivisor  = 25
	minRowsPerStep     = 6
	maxRowsPerStep     = 150

	classifyingRatio = 0.33
	finalizingRatio  = 0.66
	minPercent       = 5

	defaultPageLimit = 50
	maxPageLimit     = 200
)

// StartJobRequest describes the snapshots to compare. Inline rows win over revisions per side.
type StartJobRequest struct {
	TenantID        string                 `json:"-"`
	RequestedBy     string                 `json:"-"`
	SessionID       string                 `json:"sessionId,omitempty"`
	LeftRevisionID  string                 `json:"leftRevisionId,omitempty"`
	RightRevisionID string                 `json:"rightRevisionId,omitempty"`
	SourceRows      []models.ComparableRow `json:"sourceRows,omitempty"`
	TargetRows      []models.ComparableRow `json:"targetRows,omitempty"`
}

func (r *StartJobRequest) requestsRevisions() bool {
	return r.LeftRevisionID != "" || r.RightRevisionID != "" || r.SessionID != ""
}

// DiffJobService runs comparisons and serves their results progressively.
type DiffJobService interface {
	// StartJob computes the diff synchronously and returns the job's first status.
	StartJob(ctx context.Context, req StartJobRequest) (*models.DiffJobStatusPayload, error)
	// GetStatus reports how much of the job has been revealed.
	GetStatus(ctx context.Context, jobID, tenantID string) (*models.DiffJobStatusPayload, error)
	// GetRows returns a page of revealed rows starting at cursor.
	GetRows(ctx context.Context, jobID, tenantID, cursor string, limit int) (*models.DiffRowsPage, error)
	// GetRowsForExport returns every row regardless of reveal progress. Only the requester may export.
	GetRowsForExport(ctx context.Context, jobID, tenantID, requestedBy string) (*models.DiffExportPayload, error)
}

// DiffJobServiceOption configures a DiffJobService.
type DiffJobServiceOption func(*diffJobService)

// WithClock overrides the time source used for reveal progress and latencies.
func WithClock(now func() time.Time) DiffJobServiceOption {
	return func(s *diffJobService) { s.now = now }
}

// WithJobIDGenerator overrides job id generation.
func WithJobIDGenerator(newID func() string) DiffJobServiceOption {
	return func(s *diffJobService) { s.newID = newID }
}

type diffJobService struct {
	store     JobStore
	revisions RevisionRowProvider
	events    DiffEventSink
	auditor   audit.AccessAuditor
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewDiffJobService creates a DiffJobService. revisions may be nil, in which case
// revision-based requests fail with DIFF_JOB_REVISION_ROWS_UNAVAILABLE.
func NewDiffJobService(
	store JobStore,
	revisions RevisionRowProvider,
	events DiffEventSink,
	auditor audit.AccessAuditor,
	logger *zap.Logger,
	opts ...DiffJobServiceOption,
) DiffJobService {
	s := &diffJobService{
		store:     store,
		revisions: revisions,
		events:    events,
		auditor:   auditor,
		logger:    logger.Named("diff-job-service"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ DiffJobService = (*diffJobService)(nil)

var (
	errJobNotFound = apperrors.New(apperrors.ErrNotFound,
		apperrors.CodeDiffJobNotFound, "Diff job not found.")
	errTenantAccessDenied = apperrors.New(apperrors.ErrAccessDenied,
		apperrors.CodeTenantAccessDenied, "Cross-tenant access is not allowed.")
	errExportAccessDenied = apperrors.New(apperrors.ErrAccessDenied,
		apperrors.CodeExportAccessDenied, "Access to this comparison export is not allowed.")
	errRevisionRowsUnavailable = apperrors.New(apperrors.ErrInvalidInput,
		apperrors.CodeRevisionRowsUnavailable, "Revision rows are unavailable for requested session/revisions.")
)

func (s *diffJobService) StartJob(ctx context.Context, req StartJobRequest) (*models.DiffJobStatusPayload, error) {
	if req.TenantID == "" || req.RequestedBy == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, apperrors.CodeInvalidRequest,
			"Tenant and requester are required.")
	}

	startedAt := s.now()

	sourceRows, targetRows, err := s.resolveRows(ctx, &req)
	if err != nil {
		return nil, err
	}

	computed := diff.Compute(sourceRows, targetRows)
	createdAt := s.now()

	job := &models.DiffJob{
		JobID:           s.newID(),
		TenantID:        req.TenantID,
		RequestedBy:     req.RequestedBy,
		CreatedAt:       createdAt.UTC(),
		ComputeDuration: createdAt.Sub(startedAt),
		ContractVersion: computed.ContractVersion,
		Rows:            computed.Rows,
		Counters:        computed.Counters,
	}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store diff job: %w", err)
	}

	s.logger.Info("Diff job created",
		zap.String("job_id", job.JobID),
		zap.String("tenant_id", job.TenantID),
		zap.Int("source_rows", len(sourceRows)),
		zap.Int("target_rows", len(targetRows)),
		zap.Int("total_rows", job.TotalRows()),
		zap.Duration("compute_duration", job.ComputeDuration))

	s.emit(ctx, job, models.DiffJobEventCreated, map[string]any{
		"computeDurationMs": job.ComputeDuration.Milliseconds(),
		"sourceRows":        len(sourceRows),
		"targetRows":        len(targetRows),
		"totalRows":         job.TotalRows(),
		"counters":          job.Counters,
	})

	return s.status(ctx, job), nil
}

// resolveRows picks the rows to compare. A side falls back to its revision rows only when
// no inline rows were given for it.
func (s *diffJobService) resolveRows(ctx context.Context, req *StartJobRequest) ([]models.ComparableRow, []models.ComparableRow, error) {
	inlineComplete := len(req.SourceRows) > 0 && len(req.TargetRows) > 0
	if !req.requestsRevisions() || inlineComplete {
		return req.SourceRows, req.TargetRows, nil
	}

	revSource, revTarget, err := s.revisionRows(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if len(revSource) == 0 || len(revTarget) == 0 {
		s.logger.Info("Revision rows unavailable",
			zap.String("tenant_id", req.TenantID),
			zap.String("session_id", logging.SanitizeValue(req.SessionID)),
			zap.String("left_revision_id", logging.SanitizeValue(req.LeftRevisionID)),
			zap.String("right_revision_id", logging.SanitizeValue(req.RightRevisionID)))
		return nil, nil, errRevisionRowsUnavailable
	}

	source, target := req.SourceRows, req.TargetRows
	if len(source) == 0 {
		source = revSource
	}
	if len(target) == 0 {
		target = revTarget
	}
	return source, target, nil
}

func (s *diffJobService) revisionRows(ctx context.Context, req *StartJobRequest) ([]models.ComparableRow, []models.ComparableRow, error) {
	if s.revisions == nil {
		return nil, nil, nil
	}

	left, right := req.LeftRevisionID, req.RightRevisionID
	if left == "" || right == "" {
		if req.SessionID == "" {
			return nil, nil, nil
		}
		var err error
		left, right, err = s.revisions.LatestRevisionPair(ctx, req.TenantID, req.SessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve latest revision pair: %w", err)
		}
		if left == "" || right == "" {
			return nil, nil, nil
		}
	}

	source, err := s.revisions.GetRevisionRows(ctx, req.TenantID, left)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load revision %s: %w", left, err)
	}
	target, err := s.revisions.GetRevisionRows(ctx, req.TenantID, right)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load revision %s: %w", right, err)
	}
	return source, target, nil
}

func (s *diffJobService) GetStatus(ctx context.Context, jobID, tenantID string) (*models.DiffJobStatusPayload, error) {
	job, err := s.requireTenantJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, job), nil
}

func (s *diffJobService) status(ctx context.Context, job *models.DiffJob) *models.DiffJobStatusPayload {
	now := s.now()
	p := revealProgress(job, now)

	if s.markOnce(ctx, job.JobID, flagFirstStatus) {
		s.emit(ctx, job, models.DiffJobEventFirstStatus, map[string]any{
			"firstStatusLatencyMs": s.latencyMs(job, now),
		})
	}
	if p.status.IsTerminal() && s.markOnce(ctx, job.JobID, flagCompleted) {
		s.emit(ctx, job, models.DiffJobEventCompleted, map[string]any{
			"completionLatencyMs": s.latencyMs(job, now),
			"totalRows":           job.TotalRows(),
			"counters":            job.Counters,
		})
	}

	var nextCursor *string
	if p.loadedRows < job.TotalRows() {
		nextCursor = cursorString(p.loadedRows)
	}

	return &models.DiffJobStatusPayload{
		ContractVersion: job.ContractVersion,
		JobID:           job.JobID,
		Phase:           p.phase,
		PercentComplete: p.percent,
		Counters:        job.Counters,
		LoadedRows:      p.loadedRows,
		TotalRows:       job.TotalRows(),
		NextCursor:      nextCursor,
		Status:          p.status,
	}
}

func (s *diffJobService) GetRows(ctx context.Context, jobID, tenantID, cursor string, limit int) (*models.DiffRowsPage, error) {
	job, err := s.requireTenantJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := revealProgress(job, now)
	if p.loadedRows > 0 && s.markOnce(ctx, job.JobID, flagFirstRows) {
		s.emit(ctx, job, models.DiffJobEventFirstRows, map[string]any{
			"firstRowsLatencyMs": s.latencyMs(job, now),
		})
	}

	available := p.loadedRows
	start := parseCursor(cursor)
	end := min(start+clampLimit(limit), available)

	rows := []models.PersistedDiffRow{}
	if start < end {
		rows = job.Rows[start:end]
	}

	var nextCursor *string
	if end < available {
		nextCursor = cursorString(end)
	}

	return &models.DiffRowsPage{
		ContractVersion: models.DiffContractVersion,
		JobID:           job.JobID,
		Rows:            rows,
		NextCursor:      nextCursor,
		LoadedRows:      available,
		TotalRows:       job.TotalRows(),
	}, nil
}

func (s *diffJobService) GetRowsForExport(ctx context.Context, jobID, tenantID, requestedBy string) (*models.DiffExportPayload, error) {
	job, err := s.requireTenantJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if job.RequestedBy != requestedBy {
		s.auditor.LogExportDenied(ctx, jobID, tenantID, requestedBy)
		return nil, errExportAccessDenied
	}

	return &models.DiffExportPayload{
		ContractVersion: job.ContractVersion,
		JobID:           job.JobID,
		Rows:            job.Rows,
		Counters:        job.Counters,
	}, nil
}

func (s *diffJobService) requireTenantJob(ctx context.Context, jobID, tenantID string) (*models.DiffJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load diff job: %w", err)
	}
	if job == nil {
		return nil, errJobNotFound
	}
	if job.TenantID != tenantID {
		s.auditor.LogCrossTenantAccess(ctx, jobID, tenantID, job.TenantID)
		return nil, errTenantAccessDenied
	}
	return job, nil
}

// markOnce reports whether the flag was newly set. Store failures suppress the event.
func (s *diffJobService) markOnce(ctx context.Context, jobID, flag string) bool {
	first, err := s.store.MarkOnce(ctx, jobID, flag)
	if err != nil {
		s.logger.Warn("Failed to record job flag",
			zap.String("job_id", jobID),
			zap.String("flag", flag),
			zap.String("error", logging.SanitizeError(err)))
		return false
	}
	return first
}

func (s *diffJobService) emit(ctx context.Context, job *models.DiffJob, eventType models.DiffJobEventType, details map[string]any) {
	s.events.Emit(ctx, models.DiffJobEvent{
		ID:        uuid.New(),
		TenantID:  job.TenantID,
		JobID:     job.JobID,
		Actor:     job.RequestedBy,
		EventType: eventType,
		Details:   details,
		CreatedAt: s.now().UTC(),
	})
}

// latencyMs measures from when computation started, not from job creation.
func (s *diffJobService) latencyMs(job *models.DiffJob, now time.Time) int64 {
	return now.Sub(job.CreatedAt.Add(-job.ComputeDuration)).Milliseconds()
}

// ============================================================================
// Reveal policy
// ============================================================================

type progress struct {
	loadedRows int
	percent    int
	phase      models.DiffJobPhase
	status     models.DiffJobStatus
}

// revealProgress derives how many rows are visible from the time since the job was created.
func revealProgress(job *models.DiffJob, now time.Time) progress {
	total := job.TotalRows()
	if total == 0 {
		return progress{
			percent: 100,
			phase:   models.DiffJobPhaseCompleted,
			status:  models.DiffJobStatusCompleted,
		}
	}

	elapsed := now.Sub(job.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	rowsPerStep := max(minRowsPerStep, min(maxRowsPerStep, (total+revealStepDivisor-1)/revealStepDivisor))
	steps := int(elapsed/revealStepInterval) + 1
	loaded := min(total, steps*rowsPerStep)
	ratio := float64(loaded) / float64(total)
	percent := min(100, max(minPercent, int(math.Round(ratio*100))))

	p := progress{
		loadedRows: loaded,
		percent:    percent,
		status:     models.DiffJobStatusRunning,
	}
	switch {
	case ratio >= 1:
		p.phase = models.DiffJobPhaseCompleted
		p.status = models.DiffJobStatusCompleted
	case ratio >= finalizingRatio:
		p.phase = models.DiffJobPhaseFinalizing
	case ratio >= classifyingRatio:
		p.phase = models.DiffJobPhaseClassifying
	default:
		p.phase = models.DiffJobPhaseMatching
	}
	return p
}

// parseCursor reads a row offset. Anything unparsable or negative starts from the beginning.
func parseCursor(cursor string) int {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cursor, 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	if parsed >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(parsed))
}

func clampLimit(limit int) int {
	if limit == 0 {
		return defaultPageLimit
	}
	return min(max(limit, 1), maxPageLimit)
}

func cursorString(offset int) *string {
	s := strconv.Itoa(offset)
	return &s
}
