package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Diff Job Phase / Status
// ============================================================================

// DiffJobPhase is the user-facing phase of a progressive diff job.
type DiffJobPhase string

const (
	DiffJobPhaseMatching    DiffJobPhase = "matching"
	DiffJobPhaseClassifying DiffJobPhase = "classifying"
	DiffJobPhaseFinalizing  DiffJobPhase = "finalizing"
	DiffJobPhaseCompleted   DiffJobPhase = "completed"
)

// ValidDiffJobPhases contains all valid phase values.
var ValidDiffJobPhases = []DiffJobPhase{
	DiffJobPhaseMatching,
	DiffJobPhaseClassifying,
	DiffJobPhaseFinalizing,
	DiffJobPhaseCompleted,
}

// IsValidDiffJobPhase checks if the given phase is valid.
func IsValidDiffJobPhase(p DiffJobPhase) bool {
	for _, v := range ValidDiffJobPhases {
		if v == p {
			return true
		}
	}
	return false
}

// DiffJobStatus describes how much of the computed result has been revealed.
type DiffJobStatus string

const (
	DiffJobStatusRunning   DiffJobStatus = "running"
	DiffJobStatusCompleted DiffJobStatus = "completed"
)

// IsTerminal returns true once every row has been revealed.
func (s DiffJobStatus) IsTerminal() bool {
	return s == DiffJobStatusCompleted
}

// ============================================================================
// Diff Job
// ============================================================================

// DiffJob is one comparison run. Rows and Counters are fixed at creation.
type DiffJob struct {
	JobID           string             `json:"job_id"`
	TenantID        string             `json:"tenant_id"`
	RequestedBy     string             `json:"requested_by"`
	CreatedAt       time.Time          `json:"created_at"`
	ComputeDuration time.Duration      `json:"compute_duration"`
	ContractVersion string             `json:"contract_version"`
	Rows            []PersistedDiffRow `json:"rows"`
	Counters        DiffJobCounters    `json:"counters"`
}

// TotalRows returns the number of computed rows.
func (j *DiffJob) TotalRows() int {
	return len(j.Rows)
}

// ============================================================================
// Payloads
// ============================================================================

// DiffJobStatusPayload is returned by status polls and job creation.
type DiffJobStatusPayload struct {
	ContractVersion string          `json:"contractVersion"`
	JobID           string          `json:"jobId"`
	Phase           DiffJobPhase    `json:"phase"`
	PercentComplete int             `json:"percentComplete"`
	Counters        DiffJobCounters `json:"counters"`
	LoadedRows      int             `json:"loadedRows"`
	TotalRows       int             `json:"totalRows"`
	NextCursor      *string         `json:"nextCursor"`
	Status          DiffJobStatus   `json:"status"`
}

// DiffRowsPage is one cursor page of revealed rows.
type DiffRowsPage struct {
	ContractVersion string             `json:"contractVersion"`
	JobID           string             `json:"jobId"`
	Rows            []PersistedDiffRow `json:"rows"`
	NextCursor      *string            `json:"nextCursor"`
	LoadedRows      int                `json:"loadedRows"`
	TotalRows       int                `json:"totalRows"`
}

// DiffExportPayload is the complete, unthrottled result handed to export renderers.
type DiffExportPayload struct {
	ContractVersion string             `json:"contractVersion"`
	JobID           string             `json:"jobId"`
	Rows            []PersistedDiffRow `json:"rows"`
	Counters        DiffJobCounters    `json:"counters"`
}

// ============================================================================
// Diff Job Events
// ============================================================================

// DiffJobEventType names a metric or lifecycle event emitted for a job.
type DiffJobEventType string

const (
	DiffJobEventCreated     DiffJobEventType = "diff.job.created"
	DiffJobEventFirstStatus DiffJobEventType = "diff.job.first_status"
	DiffJobEventFirstRows   DiffJobEventType = "diff.job.first_rows"
	DiffJobEventCompleted   DiffJobEventType = "diff.job.completed"
)

// ValidDiffJobEventTypes contains all valid event type values.
var ValidDiffJobEventTypes = []DiffJobEventType{
	DiffJobEventCreated,
	DiffJobEventFirstStatus,
	DiffJobEventFirstRows,
	DiffJobEventCompleted,
}

// IsValidDiffJobEventType checks if the given event type is valid.
func IsValidDiffJobEventType(t DiffJobEventType) bool {
	for _, v := range ValidDiffJobEventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DiffJobEvent is a structured record for the telemetry/audit sink.
// Stored in engine_diff_events table when persistence is enabled.
type DiffJobEvent struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  string           `json:"tenant_id"`
	JobID     string           `json:"job_id"`
	Actor     string           `json:"actor"`
	EventType DiffJobEventType `json:"event_type"`
	Details   map[string]any   `json:"details,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
