package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/King-fly/subtitle-api/internal/domain"
	"github.com/King-fly/subtitle-api/internal/infra"
	"github.com/King-fly/subtitle-api/internal/scheduler"
	"github.com/King-fly/subtitle-api/internal/storage"
)

// ownerHeader carries the opaque principal reference. Authenticating it is
// the job of whatever sits in front of this service; the core only scopes
// queries by it.
const ownerHeader = "X-Owner-ID"

// App bundles the dependencies the HTTP layer needs.
type App struct {
	Cfg    *infra.Config
	Store  domain.Store
	Sched  *scheduler.Scheduler
	Media  *storage.MediaStore
	Logger zerolog.Logger
}

// NewApp creates the handler container.
func NewApp(cfg *infra.Config, store domain.Store, sched *scheduler.Scheduler, media *storage.MediaStore, logger zerolog.Logger) *App {
	return &App{Cfg: cfg, Store: store, Sched: sched, Media: media, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError maps domain errors onto HTTP status codes and a stable body.
func (a *App) jsonError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrBackpressure):
		code = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.json(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
		return
	}
	a.json(w, code, map[string]any{"error": domain.Cause(err), "detail": err.Error()})
}

// owner extracts the principal reference; requests without one are rejected
// before touching any state.
func (a *App) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		a.json(w, http.StatusBadRequest, map[string]any{"error": "invalid_request", "detail": ownerHeader + " header is required"})
		return "", false
	}
	return owner, true
}
