package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/scheduler"
)

type taskResponse struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Language    string     `json:"language,omitempty"`
	Model       string     `json:"model,omitempty"`
	Formats     []string   `json:"formats"`
	State       string     `json:"state"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toTaskResponse(job *domain.Job) taskResponse {
	formats := make([]string, len(job.Formats))
	for i, f := range job.Formats {
		formats[i] = string(f)
	}
	return taskResponse{
		ID:          job.ID,
		Filename:    job.Filename,
		Language:    job.Language,
		Model:       job.Model,
		Formats:     formats,
		State:       string(job.State),
		Progress:    job.Progress,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// CreateTask accepts a multipart upload and enqueues a transcription job.
// The response is 202: completion is observed via GetTask.
func (a *App) CreateTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}

	// The size limit is enforced while reading, so an oversized body is
	// rejected without being buffered in full.
	r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.json(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error":  "invalid_request",
				"detail": fmt.Sprintf("upload exceeds %d bytes", a.Cfg.MaxUploadBytes),
			})
			return
		}
		a.jsonError(w, fmt.Errorf("%w: parse multipart form: %v", domain.ErrInvalidRequest, err))
		return
	}

	formats, err := domain.ParseFormats(formatTags(r))
	if err != nil {
		a.jsonError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.jsonError(w, fmt.Errorf("%w: a media file is required", domain.ErrInvalidRequest))
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		filename = "upload"
	}
	key := fmt.Sprintf("media/%s/%s", uuid.NewString(), filename)
	mediaPath, size, err := a.Media.Save(r.Context(), key, file)
	if err != nil {
		a.jsonError(w, fmt.Errorf("store upload: %w", err))
		return
	}

	job, err := a.Sched.Submit(r.Context(), scheduler.SubmitRequest{
		Owner:     owner,
		MediaPath: mediaPath,
		Filename:  filename,
		Language:  r.FormValue("language"),
		Model:     r.FormValue("model"),
		Formats:   formats,
	})
	if err != nil {
		// The upload has no owner record; do not leak it on disk.
		_ = a.Media.Remove(mediaPath)
		a.jsonError(w, err)
		return
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("filename", filename).
		Int64("bytes", size).
		Msg("task accepted")
	a.json(w, http.StatusAccepted, toTaskResponse(job))
}

// ListTasks returns the caller's jobs, newest first.
func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	jobs, err := a.Store.ListByOwner(r.Context(), owner)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	out := make([]taskResponse, len(jobs))
	for i := range jobs {
		out[i] = toTaskResponse(&jobs[i])
	}
	a.json(w, http.StatusOK, map[string]any{"tasks": out})
}

// GetTask returns one job's state, progress and error.
func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	job, err := a.ownedJob(r, owner)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(job))
}

// CancelTask requests cancellation. Always 202 for an existing job,
// whatever state it is in: cancel is idempotent.
func (a *App) CancelTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	job, err := a.ownedJob(r, owner)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	if err := a.Sched.Cancel(r.Context(), job.ID); err != nil {
		a.jsonError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"id": job.ID, "status": "cancel_requested"})
}

// DeleteTask cancels the job if needed and removes it with its artifacts
// and the uploaded media file.
func (a *App) DeleteTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	job, err := a.ownedJob(r, owner)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	if !job.State.Terminal() {
		if err := a.Sched.Cancel(r.Context(), job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, err)
			return
		}
	}
	if err := a.Store.Delete(r.Context(), job.ID); err != nil {
		a.jsonError(w, err)
		return
	}
	if err := a.Media.Remove(job.MediaPath); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("remove media file")
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedJob loads the path job and scopes it to the caller. Someone else's
// job is indistinguishable from a missing one.
func (a *App) ownedJob(r *http.Request, owner string) (*domain.Job, error) {
	job, err := a.Store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// formatTags reads the requested formats from either repeated form values
// or one comma-separated value.
func formatTags(r *http.Request) []string {
	values := r.Form["formats"]
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
