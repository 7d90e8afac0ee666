package model

import (
	"time"
)

// ExtractionJob tracks one upload batch through its lifecycle
type ExtractionJob struct {
	ID             string            `json:"id"`
	Tenant         string            `json:"tenant"`
	Status         string            `json:"status"` // pending, processing, completed, failed
	Progress       int               `json:"progress"`
	TotalFiles     int               `json:"total_files"`
	ProcessedFiles int               `json:"processed_files"`
	Filenames      []string          `json:"filenames,omitempty"`
	ExtractionType string            `json:"extraction_type,omitempty"`
	Results        *ExtractionResult `json:"results,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ExtractionJob status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// statusRank orders statuses along the job lifecycle. Terminal states share
// the highest rank so neither can replace the other.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// CanTransition reports whether a job may move from one status to another.
// Transitions only move forward; a terminal status never changes.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Clone returns a copy of the job safe to hand to callers while the deferred
// task keeps mutating the original. Results is shared: it is written once,
// at completion, and read-only afterwards.
func (j *ExtractionJob) Clone() *ExtractionJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Filenames != nil {
		cp.Filenames = append([]string(nil), j.Filenames...)
	}
	return &cp
}
