package services

import (
	"context"
	"sync"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// One-time flags recorded per job through JobStore.MarkOnce.
const (
	flagFirstStatus = "first_status"
	flagFirstRows   = "first_rows"
	flagCompleted   = "completed"
)

// JobStore holds computed diff jobs. Jobs are immutable once stored.
type JobStore interface {
	// Put stores a job, replacing any job with the same id.
	Put(ctx context.Context, job *models.DiffJob) error
	// Get returns the job, or nil with no error if it does not exist.
	Get(ctx context.Context, jobID string) (*models.DiffJob, error)
	// MarkOnce records flag for the job and reports whether this call set it first.
	MarkOnce(ctx context.Context, jobID, flag string) (bool, error)
}

type memoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*models.DiffJob
	flags map[string]map[string]struct{}
}

// NewMemoryJobStore creates a process-local job store.
func NewMemoryJobStore() JobStore {
	return &memoryJobStore{
		jobs:  make(map[string]*models.DiffJob),
		flags: make(map[string]map[string]struct{}),
	}
}

var _ JobStore = (*memoryJobStore)(nil)

func (s *memoryJobStore) Put(_ context.Context, job *models.DiffJob) error {
	s.mu.Lock()
	s.jobs[job.JobID] = job
	s.mu.Unlock()
	return nil
}

func (s *memoryJobStore) Get(_ context.Context, jobID string) (*models.DiffJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[jobID], nil
}

func (s *memoryJobStore) MarkOnce(_ context.Context, jobID, flag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.flags[jobID]
	if !ok {
		set = make(map[string]struct{})
		s.flags[jobID] = set
	}
	if _, seen := set[flag]; seen {
		return false, nil
	}
	set[flag] = struct{}{}
	return true, nil
}
