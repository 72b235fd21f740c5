package handlers

import (
	"context"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
	"github.com/ekaya-inc/bomdiff-engine/pkg/services"
)

// mockDiffJobService records calls and returns canned results.
type mockDiffJobService struct {
	startReq     services.StartJobRequest
	startResult  *models.DiffJobStatusPayload
	statusResult *models.DiffJobStatusPayload
	rowsResult   *models.DiffRowsPage
	exportResult *models.DiffExportPayload
	err          error

	gotJobID    string
	gotTenantID string
	gotUserID   string
	gotCursor   string
	gotLimit    int
}

var _ services.DiffJobService = (*mockDiffJobService)(nil)

func (m *mockDiffJobService) StartJob(_ context.Context, req services.StartJobRequest) (*models.DiffJobStatusPayload, error) {
	m.startReq = req
	return m.startResult, m.err
}

func (m *mockDiffJobService) GetStatus(_ context.Context, jobID, tenantID string) (*models.DiffJobStatusPayload, error) {
	m.gotJobID, m.gotTenantID = jobID, tenantID
	return m.statusResult, m.err
}

func (m *mockDiffJobService) GetRows(_ context.Context, jobID, tenantID, cursor string, limit int) (*models.DiffRowsPage, error) {
	m.gotJobID, m.gotTenantID, m.gotCursor, m.gotLimit = jobID, tenantID, cursor, limit
	return m.rowsResult, m.err
}

func (m *mockDiffJobService) GetRowsForExport(_ context.Context, jobID, tenantID, requestedBy string) (*models.DiffExportPayload, error) {
	m.gotJobID, m.gotTenantID, m.gotUserID = jobID, tenantID, requestedBy
	return m.exportResult, m.err
}
