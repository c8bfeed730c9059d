/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RealIP:       Client address behind proxies
  3. requestLog:   Structured request logging (zerolog)
  4. Recoverer:    Panic recovery (500 instead of crash)
  5. CORS:         Cross-origin requests for the back-office frontend
  6. RequireActor: Caller resolution, applied to /api only

SEE ALSO:
  - handlers.go: handler implementations
  - actor.go: caller resolution
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", userIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Scenario routes. Seeding creates the demo users, so it sits
		// outside the actor middleware.
		r.Post("/scenarios/demo", h.LoadDemoScenario)

		r.Group(func(r chi.Router) {
			r.Use(RequireActor(h.Catalog))

			// Shift routes
			r.Route("/shifts", func(r chi.Router) {
				r.Get("/", h.ListShifts)
				r.Post("/", h.StartShift)
				r.Get("/active", h.GetActiveShift)
				r.Get("/name", h.SuggestShiftName)
				r.Get("/{id}", h.GetShift)
				r.Get("/{id}/summary", h.GetSummary)
				r.Post("/{id}/complete", h.CompleteShift)
				r.Post("/{id}/verify", h.VerifyShift)
				r.Post("/{id}/archive", h.ArchiveShift)
				r.Put("/{id}/readings/{readingID}", h.UpdateReading)
				r.Post("/{id}/payments", h.RecordPayment)
				r.Delete("/{id}/payments/{paymentID}", h.DeletePayment)
				r.Get("/{id}/edit-requests", h.ListEditRequests)
				r.Post("/{id}/edit-requests", h.CreateEditRequest)
			})

			// Edit request resolution
			r.Route("/edit-requests", func(r chi.Router) {
				r.Post("/{id}/approve", h.ApproveEditRequest)
				r.Post("/{id}/reject", h.RejectEditRequest)
			})

			// Catalog routes
			r.Route("/catalog", func(r chi.Router) {
				r.Get("/nozzles", h.ListNozzles)
				r.Get("/payment-methods", h.ListPaymentMethods)
			})
		})
	})

	return r
}

// requestLog emits one structured line per request.
func requestLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
