package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/compscout/compscout/internal/landscape"
)

// ErrJobNotFound is returned when a job ID is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]landscape.Job
	artifacts map[string][]landscape.ArtifactRecord
	proximity map[string]landscape.ProximityResult
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:      make(map[string]landscape.Job),
		artifacts: make(map[string][]landscape.ArtifactRecord),
		proximity: make(map[string]landscape.ProximityResult),
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job landscape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status landscape.JobStatus,
	errText string,
	counters landscape.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == landscape.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordArtifact appends an artifact row for a job.
func (s *JobStore) RecordArtifact(_ context.Context, artifact landscape.ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.JobID] = append(s.artifacts[artifact.JobID], artifact)
	return nil
}

// SaveProximityResult stores the proximity output for a job.
func (s *JobStore) SaveProximityResult(_ context.Context, jobID string, result landscape.ProximityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	s.proximity[jobID] = result
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (landscape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return landscape.Job{}, ErrJobNotFound
	}
	return job, nil
}

// ListArtifacts returns all recorded artifacts for a job.
func (s *JobStore) ListArtifacts(_ context.Context, jobID string) ([]landscape.ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifacts := s.artifacts[jobID]
	out := make([]landscape.ArtifactRecord, len(artifacts))
	copy(out, artifacts)
	return out, nil
}

// GetProximityResult returns the proximity result for a job, if present.
func (s *JobStore) GetProximityResult(_ context.Context, jobID string) (landscape.ProximityResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.proximity[jobID]
	return result, ok, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status landscape.JobStatus) bool {
	switch status {
	case landscape.JobStatusSucceeded, landscape.JobStatusFailed, landscape.JobStatusCanceled:
		return true
	default:
		return false
	}
}
