package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/parking-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса парковки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if h.authMiddleware != nil {
			r.Use(h.authMiddleware.Middleware)
		}

		r.Post("/slots", h.CreateSlot)
		r.Get("/slots/{code}", h.GetSlot)

		r.Post("/clients", h.CreateClient)
		r.Get("/clients/{cpf}", h.GetClient)
		r.Get("/clients/{cpf}/stays", h.ListStays)

		r.Post("/parkings/checkin", h.CheckIn)
		r.Get("/parkings/checkin/{receipt}", h.GetCheckIn)
		r.Put("/parkings/checkout/{receipt}", h.CheckOut)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route_not_found", http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
