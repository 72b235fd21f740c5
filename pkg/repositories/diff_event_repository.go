package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/bomdiff-engine/pkg/database"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// DiffEventRepository provides data access for the diff job event log.
// All methods require a tenant scope in the context; RLS restricts rows to that tenant.
type DiffEventRepository interface {
	// Append inserts one event. ID and CreatedAt are filled in when zero.
	Append(ctx context.Context, event *models.DiffJobEvent) error

	// ListByJob returns a job's events, oldest first.
	ListByJob(ctx context.Context, jobID string) ([]*models.DiffJobEvent, error)
}

type diffEventRepository struct{}

// NewDiffEventRepository creates a new DiffEventRepository.
func NewDiffEventRepository() DiffEventRepository {
	return &diffEventRepository{}
}

var _ DiffEventRepository = (*diffEventRepository)(nil)

func (r *diffEventRepository) Append(ctx context.Context, event *models.DiffJobEvent) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	details := []byte("{}")
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	query := `
		INSERT INTO engine_diff_events (
			id, tenant_id, job_id, actor, event_type, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, query,
		event.ID,
		event.TenantID,
		event.JobID,
		event.Actor,
		string(event.EventType),
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append diff event: %w", err)
	}
	return nil
}

func (r *diffEventRepository) ListByJob(ctx context.Context, jobID string) ([]*models.DiffJobEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, job_id, actor, event_type, details, created_at
		FROM engine_diff_events
		WHERE job_id = $1
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diff events: %w", err)
	}
	defer rows.Close()

	var events []*models.DiffJobEvent
	for rows.Next() {
		var (
			event     models.DiffJobEvent
			eventType string
			details   []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.JobID,
			&event.Actor,
			&eventType,
			&details,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan diff event: %w", err)
		}
		event.EventType = models.DiffJobEventType(eventType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate diff events: %w", err)
	}

	return events, nil
}
