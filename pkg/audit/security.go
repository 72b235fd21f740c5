// Package audit provides security audit logging for SIEM consumption.
// Denied access attempts are logged as structured JSON under the
// "security_audit" logger namespace.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventCrossTenantAccessDenied is logged when a caller reads a job owned by another tenant.
	EventCrossTenantAccessDenied SecurityEventType = "cross_tenant_access_denied"
	// EventExportAccessDenied is logged when someone other than the requester exports a job.
	EventExportAccessDenied SecurityEventType = "export_access_denied"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	EventType      SecurityEventType `json:"event_type"`
	JobID          string            `json:"job_id"`
	CallerTenantID string            `json:"caller_tenant_id"`
	CallerUserID   string            `json:"caller_user_id,omitempty"`
	OwnerTenantID  string            `json:"owner_tenant_id"`
	Severity       string            `json:"severity"` // info, warning, critical
}

// AccessAuditor records denied reads of diff jobs.
type AccessAuditor interface {
	LogCrossTenantAccess(ctx context.Context, jobID, callerTenantID, ownerTenantID string)
	LogExportDenied(ctx context.Context, jobID, tenantID, callerUserID string)
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

var _ AccessAuditor = (*SecurityAuditor)(nil)

// NewSecurityAuditor creates a security auditor under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

// LogCrossTenantAccess records a caller from one tenant reaching for another tenant's job.
// Logged at WARN with "critical" severity: it is either a bug or probing.
func (a *SecurityAuditor) LogCrossTenantAccess(ctx context.Context, jobID, callerTenantID, ownerTenantID string) {
	event := SecurityEvent{
		Timestamp:      a.now().UTC(),
		EventType:      EventCrossTenantAccessDenied,
		JobID:          jobID,
		CallerTenantID: callerTenantID,
		CallerUserID:   auth.GetUserIDFromContext(ctx),
		OwnerTenantID:  ownerTenantID,
		Severity:       "critical",
	}
	a.write(event, "Cross-tenant diff job access denied")
}

// LogExportDenied records an export attempt by someone other than the job's requester.
func (a *SecurityAuditor) LogExportDenied(ctx context.Context, jobID, tenantID, callerUserID string) {
	if callerUserID == "" {
		callerUserID = auth.GetUserIDFromContext(ctx)
	}
	event := SecurityEvent{
		Timestamp:      a.now().UTC(),
		EventType:      EventExportAccessDenied,
		JobID:          jobID,
		CallerTenantID: tenantID,
		CallerUserID:   callerUserID,
		OwnerTenantID:  tenantID,
		Severity:       "warning",
	}
	a.write(event, "Diff export access denied")
}

func (a *SecurityAuditor) write(event SecurityEvent, message string) {
	// Marshaling a flat struct of strings cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn(message,
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("job_id", event.JobID),
		zap.String("tenant_id", event.CallerTenantID),
		zap.String("user_id", event.CallerUserID),
		zap.String("severity", event.Severity),
	)
}
