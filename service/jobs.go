package service

import (
	"context"
	"fmt"
	"time"

	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/google/uuid"
)

// JobManager wraps the job store with lifecycle rules: status only moves
// forward and progress never decreases.
type JobManager struct {
	store JobStore
}

// NewJobManager creates a job manager on top of the given store
func NewJobManager(store JobStore) *JobManager {
	return &JobManager{store: store}
}

// Create registers a pending job for an upload batch and returns it. The id
// is handed back to the client immediately; processing happens later.
func (m *JobManager) Create(ctx context.Context, tenant string, filenames []string, extractionType string) (*model.ExtractionJob, error) {
	now := time.Now()
	job := &model.ExtractionJob{
		ID:             uuid.New().String(),
		Tenant:         tenant,
		Status:         model.StatusPending,
		TotalFiles:     len(filenames),
		Filenames:      filenames,
		ExtractionType: extractionType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	return job, nil
}

// Get returns the job by id
func (m *JobManager) Get(ctx context.Context, id string) (*model.ExtractionJob, error) {
	return m.store.Get(ctx, id)
}

// ListByTenant returns the tenant's jobs, newest first
func (m *JobManager) ListByTenant(ctx context.Context, tenant string) ([]*model.ExtractionJob, error) {
	return m.store.GetByTenant(ctx, tenant)
}

// MarkProcessing moves the job from pending to processing
func (m *JobManager) MarkProcessing(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, model.StatusProcessing)
}

// SetProgress records that processed files out of the job's total are done.
// Progress is derived as processed/total and clamped so it never moves
// backwards even if updates arrive out of order.
func (m *JobManager) SetProgress(ctx context.Context, id string, processed int) error {
	_, err := m.store.Update(ctx, id, func(j *model.ExtractionJob) error {
		if processed > j.TotalFiles {
			processed = j.TotalFiles
		}
		if processed <= j.ProcessedFiles {
			return nil
		}
		j.ProcessedFiles = processed
		if j.TotalFiles > 0 {
			if p := processed * 100 / j.TotalFiles; p > j.Progress {
				j.Progress = p
			}
		}
		return nil
	})
	return err
}

// Complete moves the job to completed and attaches the aggregated results
func (m *JobManager) Complete(ctx context.Context, id string, results *model.ExtractionResult) error {
	_, err := m.store.Update(ctx, id, func(j *model.ExtractionJob) error {
		if !model.CanTransition(j.Status, model.StatusCompleted) {
			return fmt.Errorf("invalid status transition %s -> %s", j.Status, model.StatusCompleted)
		}
		j.Status = model.StatusCompleted
		j.Results = results
		j.Progress = 100
		j.ProcessedFiles = j.TotalFiles
		return nil
	})
	return err
}

// Fail moves the job to failed with an error message
func (m *JobManager) Fail(ctx context.Context, id, errMsg string) error {
	_, err := m.store.Update(ctx, id, func(j *model.ExtractionJob) error {
		if !model.CanTransition(j.Status, model.StatusFailed) {
			return fmt.Errorf("invalid status transition %s -> %s", j.Status, model.StatusFailed)
		}
		j.Status = model.StatusFailed
		j.ErrorMessage = errMsg
		return nil
	})
	return err
}

func (m *JobManager) setStatus(ctx context.Context, id, status string) error {
	_, err := m.store.Update(ctx, id, func(j *model.ExtractionJob) error {
		if !model.CanTransition(j.Status, status) {
			return fmt.Errorf("invalid status transition %s -> %s", j.Status, status)
		}
		j.Status = status
		return nil
	})
	return err
}
