package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
)

// ErrJobNotFound is returned when a job id is not in the store
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps extraction jobs for the lifetime of the service.
// Jobs are not durable; after a restart clients re-upload.
type JobStore interface {
	Save(ctx context.Context, job *model.ExtractionJob) error
	Get(ctx context.Context, id string) (*model.ExtractionJob, error)
	GetByTenant(ctx context.Context, tenant string) ([]*model.ExtractionJob, error)
	Update(ctx context.Context, id string, mutate func(*model.ExtractionJob) error) (*model.ExtractionJob, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// MemoryJobStore is an in-memory store for extraction jobs
type MemoryJobStore struct {
	jobs    map[string]*model.ExtractionJob
	mu      sync.RWMutex
	maxJobs int // Maximum jobs to keep, 0 = unlimited
}

var (
	globalStore JobStore
	storeOnce   sync.Once
)

// InitJobStore initializes the global job store from configuration
func InitJobStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		switch cfg.Backend {
		case "redis":
			globalStore = NewRedisJobStore(&cfg.Redis)
			slog.Info("job store initialized", "backend", "redis", "addr", cfg.Redis.Addr)
		default:
			globalStore = NewMemoryJobStore(cfg.MaxJobs)
			slog.Info("job store initialized", "backend", "memory", "max_jobs", cfg.MaxJobs)
		}
	})
}

// GetJobStore returns the global job store
func GetJobStore() JobStore {
	if globalStore == nil {
		// Fallback initialization with default settings
		globalStore = NewMemoryJobStore(100)
	}
	return globalStore
}

// NewMemoryJobStore creates an in-memory job store keeping at most maxJobs
// jobs (0 = unlimited)
func NewMemoryJobStore(maxJobs int) *MemoryJobStore {
	if maxJobs < 0 {
		maxJobs = 0
	}
	return &MemoryJobStore{
		jobs:    make(map[string]*model.ExtractionJob),
		maxJobs: maxJobs,
	}
}

func (s *MemoryJobStore) Save(_ context.Context, job *model.ExtractionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := job.Clone()
	cp.UpdatedAt = time.Now()
	s.jobs[cp.ID] = cp

	// Cleanup if exceeds max
	s.cleanupIfNeeded()
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.ExtractionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) GetByTenant(_ context.Context, tenant string) ([]*model.ExtractionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.ExtractionJob
	for _, j := range s.jobs {
		if j.Tenant == tenant {
			result = append(result, j.Clone())
		}
	}
	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Update applies mutate to the stored job under the lock. The change is
// committed only when mutate returns nil, so a rejected status transition
// leaves the job untouched.
func (s *MemoryJobStore) Update(_ context.Context, id string, mutate func(*model.ExtractionJob) error) (*model.ExtractionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	next := job.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// Count returns the number of jobs in the store
func (s *MemoryJobStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

// cleanupIfNeeded removes oldest jobs if store exceeds maxJobs
// Must be called with lock held
func (s *MemoryJobStore) cleanupIfNeeded() {
	if s.maxJobs <= 0 {
		return // Unlimited
	}

	if len(s.jobs) <= s.maxJobs {
		return
	}

	// Sort jobs by creation time
	jobs := make([]*model.ExtractionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	// Remove oldest jobs
	removeCount := len(jobs) - s.maxJobs
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old job",
			"job_id", jobs[i].ID,
			"created_at", jobs[i].CreatedAt,
		)
		delete(s.jobs, jobs[i].ID)
	}
}
