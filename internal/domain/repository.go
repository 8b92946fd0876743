package domain

import (
	"context"
	"time"
)

// StateChange carries the optional fields written alongside a state
// transition. Nil fields are left untouched.
type StateChange struct {
	Progress    *float64
	Error       *string
	CompletedAt *time.Time
}

// Store defines durable persistence for jobs and their subtitle artifacts.
// It is the only persistence surface the scheduling core depends on.
//
// Implementations must serialize concurrent writes to the same job so that
// exactly one terminal transition wins: CompareAndSetState and
// AttachSubtitles are conditional on the current state, never blind
// overwrites.
type Store interface {
	// Create persists a new job record.
	Create(ctx context.Context, job *Job) error

	// GetByID fetches a job, ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Job, error)

	// CompareAndSetState transitions the job from expected to next and
	// applies change, all atomically. It returns false (and no error) when
	// the job was not in the expected state, which callers treat as having
	// lost the race to a concurrent transition.
	CompareAndSetState(ctx context.Context, id string, expected, next JobState, change StateChange) (bool, error)

	// UpdateProgress advances progress on a processing job. Progress is
	// monotone: a value below the stored one is ignored. Calls against a
	// non-processing job are no-ops.
	UpdateProgress(ctx context.Context, id string, progress float64) error

	// AttachSubtitles commits the full artifact set and the
	// processing->completed transition as a single atomic operation. Either
	// every record is persisted and the job is completed with progress 1.0,
	// or nothing is written. ErrConflict when the job is no longer
	// processing (a concurrent cancellation won).
	AttachSubtitles(ctx context.Context, jobID string, records []Subtitle) error

	// ListByOwner returns the jobs submitted by one principal, newest first.
	ListByOwner(ctx context.Context, owner string) ([]Job, error)

	// ListSubtitles returns the artifacts attached to a job. ErrNotFound
	// when the job itself does not exist.
	ListSubtitles(ctx context.Context, jobID string) ([]Subtitle, error)

	// GetSubtitleByID fetches one artifact, ErrNotFound if absent.
	GetSubtitleByID(ctx context.Context, id string) (*Subtitle, error)

	// Delete removes a job and cascades to its subtitle records.
	Delete(ctx context.Context, jobID string) error
}
