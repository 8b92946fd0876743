package handlers

import "net/http"

// Health reports liveness. Readiness of the pipeline itself is observable
// through task state, so there is no separate readiness probe.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "ok"})
}
