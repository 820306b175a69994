package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cordoba-data/program-dashboard/internal/middleware"
)

// SetupRoutes returns the /api router.
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware)
		r.Get("/catalogue", s.CatalogueHandler)
		r.Post("/catalogue/refresh", s.RefreshHandler)
		r.Get("/views/{program}", s.ViewHandler)
		if s.feedback != nil {
			r.Mount("/feedback", s.feedback)
		}
	})

	r.Get("/history/runs", s.RunsHandler)

	return r
}
