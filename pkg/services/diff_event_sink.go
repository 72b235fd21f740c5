package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/logging"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
	"github.com/ekaya-inc/bomdiff-engine/pkg/repositories"
	"github.com/ekaya-inc/bomdiff-engine/pkg/retry"
)

// DiffEventSink receives diff job metric events. Emit must not block the caller
// and never reports failure; delivery is best-effort.
type DiffEventSink interface {
	Emit(ctx context.Context, event models.DiffJobEvent)
}

// ============================================================================
// Log sink
// ============================================================================

type logEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink creates a sink that writes each event as a structured log record.
func NewLogEventSink(logger *zap.Logger) DiffEventSink {
	return &logEventSink{logger: logger.Named("diff-events")}
}

var _ DiffEventSink = (*logEventSink)(nil)

func (s *logEventSink) Emit(_ context.Context, event models.DiffJobEvent) {
	s.logger.Info("Diff job event",
		zap.String("event_type", string(event.EventType)),
		zap.String("job_id", event.JobID),
		zap.String("tenant_id", event.TenantID),
		zap.String("actor", event.Actor),
		zap.Any("details", event.Details),
		zap.Time("emitted_at", event.CreatedAt))
}

// ============================================================================
// Repository sink
// ============================================================================

// TenantScoper opens a tenant-scoped database context. Implemented by database.TenantScopeProvider.
type TenantScoper interface {
	WithTenantScope(ctx context.Context, tenantID string) (context.Context, func(), error)
}

const eventWriteTimeout = 5 * time.Second

// RepositoryEventSink persists events asynchronously through a DiffEventRepository.
// Events are queued on a bounded buffer and dropped with a warning when it is full.
type RepositoryEventSink struct {
	repo     repositories.DiffEventRepository
	scopes   TenantScoper
	logger   *zap.Logger
	retryCfg *retry.Config

	mu     sync.RWMutex
	closed bool
	events chan models.DiffJobEvent
	done   chan struct{}
}

// NewRepositoryEventSink starts the background writer. Call Close to flush and stop it.
func NewRepositoryEventSink(repo repositories.DiffEventRepository, scopes TenantScoper, logger *zap.Logger, buffer int) *RepositoryEventSink {
	if buffer < 1 {
		buffer = 1
	}
	s := &RepositoryEventSink{
		repo:     repo,
		scopes:   scopes,
		logger:   logger.Named("diff-event-writer"),
		retryCfg: retry.DefaultConfig(),
		events:   make(chan models.DiffJobEvent, buffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

var _ DiffEventSink = (*RepositoryEventSink)(nil)

// Emit queues the event without blocking.
func (s *RepositoryEventSink) Emit(_ context.Context, event models.DiffJobEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn("Dropping diff event, buffer full",
			zap.String("event_type", string(event.EventType)),
			zap.String("job_id", event.JobID))
	}
}

// Close stops accepting events and waits for queued events to be written.
func (s *RepositoryEventSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
}

func (s *RepositoryEventSink) run() {
	defer close(s.done)
	for event := range s.events {
		if err := s.write(event); err != nil {
			s.logger.Warn("Failed to persist diff event",
				zap.String("event_type", string(event.EventType)),
				zap.String("job_id", event.JobID),
				zap.String("tenant_id", event.TenantID),
				zap.String("error", logging.SanitizeError(err)))
		}
	}
}

func (s *RepositoryEventSink) write(event models.DiffJobEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()

	return retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		tenantCtx, cleanup, err := s.scopes.WithTenantScope(ctx, event.TenantID)
		if err != nil {
			return err
		}
		defer cleanup()
		return s.repo.Append(tenantCtx, &event)
	})
}

// ============================================================================
// Fan-out
// ============================================================================

// MultiEventSink delivers each event to every sink in order.
type MultiEventSink []DiffEventSink

var _ DiffEventSink = MultiEventSink(nil)

func (m MultiEventSink) Emit(ctx context.Context, event models.DiffJobEvent) {
	for _, sink := range m {
		sink.Emit(ctx, event)
	}
}
