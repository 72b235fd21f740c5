package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/apperrors"
	"github.com/ekaya-inc/bomdiff-engine/pkg/jsonutil"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.DiffJobEvent
}

func (s *recordingSink) Emit(_ context.Context, event models.DiffJobEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) types() []models.DiffJobEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DiffJobEventType
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingAuditor struct {
	crossTenant []string
	exports     []string
}

func (a *recordingAuditor) LogCrossTenantAccess(_ context.Context, jobID, callerTenantID, ownerTenantID string) {
	a.crossTenant = append(a.crossTenant, jobID+":"+callerTenantID+"->"+ownerTenantID)
}

func (a *recordingAuditor) LogExportDenied(_ context.Context, jobID, tenantID, callerUserID string) {
	a.exports = append(a.exports, jobID+":"+tenantID+":"+callerUserID)
}

type fakeRevisionProvider struct {
	rows     map[string][]models.ComparableRow // key: tenant/revision
	sessions map[string][2]string              // key: tenant/session
	err      error
}

func (p *fakeRevisionProvider) GetRevisionRows(_ context.Context, tenantID, revisionID string) ([]models.ComparableRow, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.rows[tenantID+"/"+revisionID], nil
}

func (p *fakeRevisionProvider) LatestRevisionPair(_ context.Context, tenantID, sessionID string) (string, string, error) {
	if p.err != nil {
		return "", "", p.err
	}
	pair := p.sessions[tenantID+"/"+sessionID]
	return pair[0], pair[1], nil
}

type failingStore struct {
	JobStore
	err error
}

func (s *failingStore) Get(context.Context, string) (*models.DiffJob, error) {
	return nil, s.err
}

type jobServiceTestContext struct {
	clock     *fakeClock
	sink      *recordingSink
	auditor   *recordingAuditor
	revisions *fakeRevisionProvider
	service   DiffJobService
}

func setupJobService(t *testing.T) *jobServiceTestContext {
	t.Helper()
	tc := &jobServiceTestContext{
		clock:   newFakeClock(),
		sink:    &recordingSink{},
		auditor: &recordingAuditor{},
		revisions: &fakeRevisionProvider{
			rows:     map[string][]models.ComparableRow{},
			sessions: map[string][2]string{},
		},
	}
	ids := 0
	tc.service = NewDiffJobService(
		NewMemoryJobStore(),
		tc.revisions,
		tc.sink,
		tc.auditor,
		zap.NewNop(),
		WithClock(tc.clock.Now),
		WithJobIDGenerator(func() string {
			ids++
			return fmt.Sprintf("job-%d", ids)
		}),
	)
	return tc
}

// identicalRows builds n matching rows on both sides; every row classifies as no_change.
func identicalRows(n int) ([]models.ComparableRow, []models.ComparableRow) {
	var source, target []models.ComparableRow
	for i := 0; i < n; i++ {
		row := models.ComparableRow{
			InternalID:  fmt.Sprintf("INT-%04d", i),
			PartNumber:  fmt.Sprintf("PN-%04d", i),
			Description: "washer",
			Quantity:    jsonutil.NumberFromFloat(float64(i%5 + 1)),
		}
		row.RowID = fmt.Sprintf("s-%04d", i)
		source = append(source, row)
		row.RowID = fmt.Sprintf("t-%04d", i)
		target = append(target, row)
	}
	return source, target
}

func (tc *jobServiceTestContext) startJob(t *testing.T, rows int) *models.DiffJobStatusPayload {
	t.Helper()
	source, target := identicalRows(rows)
	status, err := tc.service.StartJob(context.Background(), StartJobRequest{
		TenantID:    "tenant-a",
		RequestedBy: "user-1",
		SourceRows:  source,
		TargetRows:  target,
	})
	require.NoError(t, err)
	return status
}

// ============================================================================
// Reveal progress
// ============================================================================

func TestDiffJobService_RevealProgression(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()

	// 300 rows reveal 12 per 600ms step.
	status := tc.startJob(t, 300)
	assert.Equal(t, "job-1", status.JobID)
	assert.Equal(t, models.DiffContractVersion, status.ContractVersion)
	assert.Equal(t, 300, status.TotalRows)
	assert.Equal(t, 12, status.LoadedRows)
	assert.Equal(t, 5, status.PercentComplete, "percent is floored at 5")
	assert.Equal(t, models.DiffJobPhaseMatching, status.Phase)
	assert.Equal(t, models.DiffJobStatusRunning, status.Status)
	require.NotNil(t, status.NextCursor)
	assert.Equal(t, "12", *status.NextCursor)
	assert.Equal(t, 300, status.Counters.NoChange)

	tests := []struct {
		elapsed time.Duration
		loaded  int
		percent int
		phase   models.DiffJobPhase
		status  models.DiffJobStatus
	}{
		{599 * time.Millisecond, 12, 5, models.DiffJobPhaseMatching, models.DiffJobStatusRunning},
		{600 * time.Millisecond, 24, 8, models.DiffJobPhaseMatching, models.DiffJobStatusRunning},
		{4800 * time.Millisecond, 108, 36, models.DiffJobPhaseClassifying, models.DiffJobStatusRunning},
		{9600 * time.Millisecond, 204, 68, models.DiffJobPhaseFinalizing, models.DiffJobStatusRunning},
		{14400 * time.Millisecond, 300, 100, models.DiffJobPhaseCompleted, models.DiffJobStatusCompleted},
		{time.Hour, 300, 100, models.DiffJobPhaseCompleted, models.DiffJobStatusCompleted},
	}

	start := tc.clock.Now()
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			tc.clock.Advance(start.Add(tt.elapsed).Sub(tc.clock.Now()))

			got, err := tc.service.GetStatus(ctx, "job-1", "tenant-a")
			require.NoError(t, err)
			assert.Equal(t, tt.loaded, got.LoadedRows)
			assert.Equal(t, tt.percent, got.PercentComplete)
			assert.Equal(t, tt.phase, got.Phase)
			assert.Equal(t, tt.status, got.Status)
			if tt.loaded == 300 {
				assert.Nil(t, got.NextCursor)
			} else {
				require.NotNil(t, got.NextCursor)
				assert.Equal(t, fmt.Sprint(tt.loaded), *got.NextCursor)
			}
		})
	}
}

func TestDiffJobService_SmallJobCompletesImmediately(t *testing.T) {
	tc := setupJobService(t)

	// Six rows fit in the minimum step.
	status := tc.startJob(t, 6)
	assert.Equal(t, 6, status.LoadedRows)
	assert.Equal(t, 100, status.PercentComplete)
	assert.Equal(t, models.DiffJobStatusCompleted, status.Status)
	assert.Nil(t, status.NextCursor)
}

func TestDiffJobService_ZeroRowJob(t *testing.T) {
	tc := setupJobService(t)

	status, err := tc.service.StartJob(context.Background(), StartJobRequest{
		TenantID:    "tenant-a",
		RequestedBy: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalRows)
	assert.Equal(t, 0, status.LoadedRows)
	assert.Equal(t, 100, status.PercentComplete)
	assert.Equal(t, models.DiffJobPhaseCompleted, status.Phase)
	assert.Equal(t, models.DiffJobStatusCompleted, status.Status)
	assert.Nil(t, status.NextCursor)

	page, err := tc.service.GetRows(context.Background(), status.JobID, "tenant-a", "", 50)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.NotNil(t, page.Rows, "rows serialize as [] rather than null")
	assert.Nil(t, page.NextCursor)
}

// ============================================================================
// Paging
// ============================================================================

func TestDiffJobService_GetRowsOnlyServesRevealedRows(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 300)

	page, err := tc.service.GetRows(ctx, "job-1", "tenant-a", "", 50)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 12)
	assert.Nil(t, page.NextCursor, "no cursor past the reveal frontier")
	assert.Equal(t, 12, page.LoadedRows)
	assert.Equal(t, 300, page.TotalRows)
	assert.Equal(t, models.DiffContractVersion, page.ContractVersion)

	page, err = tc.service.GetRows(ctx, "job-1", "tenant-a", "5", 3)
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "s-0005::t-0005", page.Rows[0].RowID)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "8", *page.NextCursor)

	page, err = tc.service.GetRows(ctx, "job-1", "tenant-a", "100", 50)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Nil(t, page.NextCursor)
}

func TestDiffJobService_CursorWalkMatchesExport(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 300)
	tc.clock.Advance(time.Minute)

	var walked []string
	cursor := ""
	for pages := 0; pages < 100; pages++ {
		page, err := tc.service.GetRows(ctx, "job-1", "tenant-a", cursor, 7)
		require.NoError(t, err)
		for _, row := range page.Rows {
			walked = append(walked, row.RowID)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	export, err := tc.service.GetRowsForExport(ctx, "job-1", "tenant-a", "user-1")
	require.NoError(t, err)
	var exported []string
	for _, row := range export.Rows {
		exported = append(exported, row.RowID)
	}

	assert.Len(t, walked, 300)
	assert.Equal(t, exported, walked)
}

func TestDiffJobService_CursorParsing(t *testing.T) {
	tests := []struct {
		cursor string
		want   int
	}{
		{"", 0},
		{"abc", 0},
		{"-4", 0},
		{"NaN", 0},
		{"2.9", 2},
		{" 3 ", 3},
		{"17", 17},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCursor(tt.cursor), "cursor %q", tt.cursor)
	}
}

func TestDiffJobService_LimitClamping(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 300)
	tc.clock.Advance(time.Minute)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 50},
		{-3, 1},
		{1, 1},
		{120, 120},
		{1000, 200},
	}
	for _, tt := range tests {
		page, err := tc.service.GetRows(ctx, "job-1", "tenant-a", "", tt.limit)
		require.NoError(t, err)
		assert.Len(t, page.Rows, tt.want, "limit %d", tt.limit)
	}
}

// ============================================================================
// Access control
// ============================================================================

func TestDiffJobService_UnknownJob(t *testing.T) {
	tc := setupJobService(t)

	_, err := tc.service.GetStatus(context.Background(), "missing", "tenant-a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, apperrors.CodeDiffJobNotFound, apperrors.CodeOf(err))

	_, err = tc.service.GetRows(context.Background(), "missing", "tenant-a", "", 10)
	assert.Equal(t, apperrors.CodeDiffJobNotFound, apperrors.CodeOf(err))
}

func TestDiffJobService_CrossTenantDenied(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 6)

	_, err := tc.service.GetStatus(ctx, "job-1", "tenant-b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAccessDenied))
	assert.Equal(t, apperrors.CodeTenantAccessDenied, apperrors.CodeOf(err))

	_, err = tc.service.GetRows(ctx, "job-1", "tenant-b", "", 10)
	assert.Equal(t, apperrors.CodeTenantAccessDenied, apperrors.CodeOf(err))

	_, err = tc.service.GetRowsForExport(ctx, "job-1", "tenant-b", "user-1")
	assert.Equal(t, apperrors.CodeTenantAccessDenied, apperrors.CodeOf(err))

	assert.Equal(t, []string{
		"job-1:tenant-b->tenant-a",
		"job-1:tenant-b->tenant-a",
		"job-1:tenant-b->tenant-a",
	}, tc.auditor.crossTenant)
}

func TestDiffJobService_ExportRequiresRequester(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 300)

	_, err := tc.service.GetRowsForExport(ctx, "job-1", "tenant-a", "user-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAccessDenied))
	assert.Equal(t, apperrors.CodeExportAccessDenied, apperrors.CodeOf(err))
	assert.Equal(t, []string{"job-1:tenant-a:user-2"}, tc.auditor.exports)

	// Export ignores reveal progress.
	export, err := tc.service.GetRowsForExport(ctx, "job-1", "tenant-a", "user-1")
	require.NoError(t, err)
	assert.Len(t, export.Rows, 300)
	assert.Equal(t, 300, export.Counters.Total)
	assert.Equal(t, models.DiffContractVersion, export.ContractVersion)
}

func TestDiffJobService_StartJobRequiresIdentity(t *testing.T) {
	tc := setupJobService(t)

	_, err := tc.service.StartJob(context.Background(), StartJobRequest{TenantID: "tenant-a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, apperrors.CodeInvalidRequest, apperrors.CodeOf(err))
}

func TestDiffJobService_StoreFailureIsNotCoded(t *testing.T) {
	storeErr := errors.New("redis: connection refused")
	service := NewDiffJobService(
		&failingStore{JobStore: NewMemoryJobStore(), err: storeErr},
		nil, &recordingSink{}, &recordingAuditor{}, zap.NewNop(),
	)

	_, err := service.GetStatus(context.Background(), "job-1", "tenant-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, apperrors.CodeOf(err))
}

// ============================================================================
// Revision-backed input
// ============================================================================

func TestDiffJobService_RevisionRows(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	source, target := identicalRows(4)
	tc.revisions.rows["tenant-a/rev-1"] = source
	tc.revisions.rows["tenant-a/rev-2"] = target
	tc.revisions.sessions["tenant-a/session-1"] = [2]string{"rev-1", "rev-2"}

	status, err := tc.service.StartJob(ctx, StartJobRequest{
		TenantID:        "tenant-a",
		RequestedBy:     "user-1",
		LeftRevisionID:  "rev-1",
		RightRevisionID: "rev-2",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, status.TotalRows)

	status, err = tc.service.StartJob(ctx, StartJobRequest{
		TenantID:    "tenant-a",
		RequestedBy: "user-1",
		SessionID:   "session-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, status.TotalRows)
}

func TestDiffJobService_InlineRowsWinPerSide(t *testing.T) {
	tc := setupJobService(t)
	source, target := identicalRows(4)
	tc.revisions.rows["tenant-a/rev-1"] = source
	tc.revisions.rows["tenant-a/rev-2"] = target

	inline, _ := identicalRows(2)
	status, err := tc.service.StartJob(context.Background(), StartJobRequest{
		TenantID:        "tenant-a",
		RequestedBy:     "user-1",
		LeftRevisionID:  "rev-1",
		RightRevisionID: "rev-2",
		SourceRows:      inline,
	})
	require.NoError(t, err)
	// Two inline sources match; the other two revision targets are added.
	assert.Equal(t, 4, status.TotalRows)
	assert.Equal(t, 2, status.Counters.NoChange)
	assert.Equal(t, 2, status.Counters.Added)
}

func TestDiffJobService_RevisionRowsUnavailable(t *testing.T) {
	source, _ := identicalRows(3)

	tests := []struct {
		name string
		req  StartJobRequest
		prov *fakeRevisionProvider
	}{
		{
			name: "unknown revisions",
			req:  StartJobRequest{LeftRevisionID: "rev-1", RightRevisionID: "rev-2"},
		},
		{
			name: "one side empty",
			req:  StartJobRequest{LeftRevisionID: "rev-1", RightRevisionID: "rev-empty"},
			prov: &fakeRevisionProvider{rows: map[string][]models.ComparableRow{"tenant-a/rev-1": source}},
		},
		{
			name: "session without a pair",
			req:  StartJobRequest{SessionID: "session-9"},
		},
		{
			name: "only left revision named",
			req:  StartJobRequest{LeftRevisionID: "rev-1"},
			prov: &fakeRevisionProvider{rows: map[string][]models.ComparableRow{"tenant-a/rev-1": source}},
		},
		{
			name: "inline rows incomplete",
			req:  StartJobRequest{LeftRevisionID: "rev-1", RightRevisionID: "rev-2", SourceRows: source},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var provider RevisionRowProvider
			if tt.prov != nil {
				provider = tt.prov
			}
			service := NewDiffJobService(NewMemoryJobStore(), provider, &recordingSink{}, &recordingAuditor{}, zap.NewNop())

			req := tt.req
			req.TenantID = "tenant-a"
			req.RequestedBy = "user-1"
			_, err := service.StartJob(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Equal(t, apperrors.CodeRevisionRowsUnavailable, apperrors.CodeOf(err))
		})
	}
}

func TestDiffJobService_RevisionProviderFailure(t *testing.T) {
	providerErr := errors.New("upload store offline")
	service := NewDiffJobService(NewMemoryJobStore(), &fakeRevisionProvider{err: providerErr},
		&recordingSink{}, &recordingAuditor{}, zap.NewNop())

	_, err := service.StartJob(context.Background(), StartJobRequest{
		TenantID:    "tenant-a",
		RequestedBy: "user-1",
		SessionID:   "session-1",
	})
	assert.ErrorIs(t, err, providerErr)
}

// ============================================================================
// Events
// ============================================================================

func TestDiffJobService_EventsEmittedOnce(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()
	tc.startJob(t, 300)

	assert.Equal(t, []models.DiffJobEventType{
		models.DiffJobEventCreated,
		models.DiffJobEventFirstStatus,
	}, tc.sink.types())

	created := tc.sink.events[0]
	assert.Equal(t, "tenant-a", created.TenantID)
	assert.Equal(t, "job-1", created.JobID)
	assert.Equal(t, "user-1", created.Actor)
	assert.Equal(t, 300, created.Details["sourceRows"])
	assert.Equal(t, 300, created.Details["totalRows"])

	_, err := tc.service.GetStatus(ctx, "job-1", "tenant-a")
	require.NoError(t, err)
	assert.Len(t, tc.sink.types(), 2, "first_status is emitted once")

	tc.clock.Advance(250 * time.Millisecond)
	_, err = tc.service.GetRows(ctx, "job-1", "tenant-a", "", 10)
	require.NoError(t, err)
	_, err = tc.service.GetRows(ctx, "job-1", "tenant-a", "10", 10)
	require.NoError(t, err)
	assert.Equal(t, models.DiffJobEventFirstRows, tc.sink.types()[2])
	assert.Len(t, tc.sink.types(), 3, "first_rows is emitted once")
	assert.Equal(t, int64(250), tc.sink.events[2].Details["firstRowsLatencyMs"])

	tc.clock.Advance(time.Minute)
	_, err = tc.service.GetStatus(ctx, "job-1", "tenant-a")
	require.NoError(t, err)
	_, err = tc.service.GetStatus(ctx, "job-1", "tenant-a")
	require.NoError(t, err)

	types := tc.sink.types()
	require.Len(t, types, 4, "completed is emitted once")
	assert.Equal(t, models.DiffJobEventCompleted, types[3])
	assert.Equal(t, 300, tc.sink.events[3].Details["totalRows"])
}

func TestDiffJobService_ZeroRowJobSkipsFirstRows(t *testing.T) {
	tc := setupJobService(t)
	ctx := context.Background()

	status, err := tc.service.StartJob(ctx, StartJobRequest{TenantID: "tenant-a", RequestedBy: "user-1"})
	require.NoError(t, err)
	_, err = tc.service.GetRows(ctx, status.JobID, "tenant-a", "", 10)
	require.NoError(t, err)

	assert.Equal(t, []models.DiffJobEventType{
		models.DiffJobEventCreated,
		models.DiffJobEventFirstStatus,
		models.DiffJobEventCompleted,
	}, tc.sink.types())
}
