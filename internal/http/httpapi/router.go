package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/King-fly/subtitle-api/internal/http/handlers"
)

// NewRouter builds the API surface on top of the handler container.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", app.CreateTask)
			r.Get("/", app.ListTasks)
			r.Get("/{id}", app.GetTask)
			r.Post("/{id}/cancel", app.CancelTask)
			r.Delete("/{id}", app.DeleteTask)
			r.Get("/{id}/subtitles", app.ListTaskSubtitles)
		})
		r.Get("/subtitles/{id}/download", app.DownloadSubtitle)
	})

	return r
}
