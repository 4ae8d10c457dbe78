package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/splitledger/splitledger/internal/middleware"
)

// Routes builds the full API router: public registration and login, then
// every ledger operation behind JWT authentication.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	r.Use(h.instrument)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", h.register)
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwt))

			r.Post("/groups", h.createGroup)
			r.Route("/groups/{id}", func(r chi.Router) {
				r.Post("/members", h.addMember)
				r.Delete("/members/{userID}", h.removeMember)
				r.Post("/expenses", h.addExpense)
				r.Get("/expenses", h.listGroupExpenses)
				r.Post("/settlements", h.addSettlement)
				r.Get("/settlements", h.listGroupSettlements)
				r.Post("/simplify", h.simplify)
				r.Get("/balances/{userID}", h.groupBalances)
			})

			r.Get("/balances", h.directBalances)
			r.Post("/expenses", h.addDirectExpense)
			r.Post("/settlements", h.addDirectSettlement)
		})
	})

	return r
}

// instrument records request duration per route pattern and status.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
