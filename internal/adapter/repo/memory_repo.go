package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/King-fly/subtitle-api/internal/domain"
)

// MemoryStore implements domain.Store in process memory. It is intended for
// development and test environments where a database is not available; the
// scheduling core is exercised against it without any external service.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	subtitles map[string][]domain.Subtitle // keyed by job id
	byID      map[string]*domain.Subtitle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*domain.Job),
		subtitles: make(map[string][]domain.Subtitle),
		byID:      make(map[string]*domain.Subtitle),
	}
}

// Create persists a new job record.
func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	stored := cloneJob(job)
	s.jobs[job.ID] = &stored
	return nil
}

// GetByID fetches a job snapshot.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

// CompareAndSetState applies a conditional state transition. The expected
// state check under the lock is what arbitrates a cancellation racing a
// worker's terminal write: exactly one caller observes expected and wins.
func (s *MemoryStore) CompareAndSetState(ctx context.Context, id string, expected, next domain.JobState, change domain.StateChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.State != expected {
		return false, nil
	}
	if !domain.CanTransition(expected, next) {
		return false, domain.ErrConflict
	}

	job.State = next
	applyChange(job, change)
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdateProgress advances progress on a processing job; regressions and
// writes against settled jobs are ignored.
func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.State != domain.JobStateProcessing {
		return nil
	}
	if progress > 1 {
		progress = 1
	}
	if progress <= job.Progress {
		return nil
	}
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// AttachSubtitles commits the artifact set and completion in one step.
func (s *MemoryStore) AttachSubtitles(ctx context.Context, jobID string, records []domain.Subtitle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.State != domain.JobStateProcessing {
		return domain.ErrConflict
	}

	now := time.Now().UTC()
	for i := range records {
		rec := records[i]
		rec.JobID = jobID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		s.subtitles[jobID] = append(s.subtitles[jobID], rec)
		stored := rec
		s.byID[rec.ID] = &stored
	}

	job.State = domain.JobStateCompleted
	job.Progress = 1
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// ListByOwner returns the owner's jobs, newest first.
func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Job
	for _, job := range s.jobs {
		if job.Owner == owner {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListSubtitles returns a job's artifacts.
func (s *MemoryStore) ListSubtitles(ctx context.Context, jobID string) ([]domain.Subtitle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Subtitle(nil), s.subtitles[jobID]...), nil
}

// GetSubtitleByID fetches one artifact.
func (s *MemoryStore) GetSubtitleByID(ctx context.Context, id string) (*domain.Subtitle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// Delete removes a job and cascades to its subtitles.
func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	for _, rec := range s.subtitles[jobID] {
		delete(s.byID, rec.ID)
	}
	delete(s.subtitles, jobID)
	delete(s.jobs, jobID)
	return nil
}

func applyChange(job *domain.Job, change domain.StateChange) {
	if change.Progress != nil {
		job.Progress = *change.Progress
	}
	if change.Error != nil {
		job.Error = *change.Error
	}
	if change.CompletedAt != nil {
		job.CompletedAt = change.CompletedAt
	}
}

func cloneJob(job *domain.Job) domain.Job {
	out := *job
	out.Formats = append([]domain.Format(nil), job.Formats...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
