package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/subtitle"
)

type subtitleResponse struct {
	ID        string    `json:"id"`
	JobID     string    `json:"task_id"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// ListTaskSubtitles returns the artifact set of one job. Content is served
// by DownloadSubtitle; the listing carries metadata only.
func (a *App) ListTaskSubtitles(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	job, err := a.ownedJob(r, owner)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	records, err := a.Sched.ListSubtitles(r.Context(), job.ID)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	out := make([]subtitleResponse, len(records))
	for i, rec := range records {
		out[i] = subtitleResponse{
			ID:        rec.ID,
			JobID:     rec.JobID,
			Format:    string(rec.Format),
			CreatedAt: rec.CreatedAt,
		}
	}
	a.json(w, http.StatusOK, map[string]any{"subtitles": out})
}

// DownloadSubtitle serves one artifact's content with a format-appropriate
// content type and download filename.
func (a *App) DownloadSubtitle(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	rec, err := a.Store.GetSubtitleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jsonError(w, err)
		return
	}
	job, err := a.Store.GetByID(r.Context(), rec.JobID)
	if err != nil {
		a.jsonError(w, err)
		return
	}
	if job.Owner != owner {
		a.jsonError(w, domain.ErrNotFound)
		return
	}

	base := job.Filename
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	w.Header().Set("Content-Type", subtitle.ContentType(rec.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+string(rec.Format)))
	_, _ = w.Write([]byte(rec.Content))
}
