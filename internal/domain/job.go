package domain

import "time"

// JobState enumerates job lifecycle states.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCanceled   JobState = "canceled"
)

// Terminal reports whether a job in this state can never transition again.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCanceled:
		return true
	default:
		return false
	}
}

// CanTransition enforces the allowed job state machine edges. Pending and
// processing are the only non-terminal states; terminal states accept no
// outgoing edge.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStatePending:
		return to == JobStateProcessing || to == JobStateCanceled
	case JobStateProcessing:
		return to == JobStateCompleted || to == JobStateFailed || to == JobStateCanceled
	default:
		return false
	}
}

// Job encapsulates one submitted transcription request and its lifecycle.
type Job struct {
	ID          string
	Owner       string
	MediaPath   string
	Filename    string
	Language    string
	Model       string
	Formats     []Format
	State       JobState
	Progress    float64
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// HasFormat reports whether the job requested the given output format.
func (j *Job) HasFormat(f Format) bool {
	for _, have := range j.Formats {
		if have == f {
			return true
		}
	}
	return false
}
