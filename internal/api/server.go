package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/birdhouse/internal/ratelimit"
	"github.com/shehryarbajwa/birdhouse/internal/stream"
)

// RunsPerHour is how many run requests a client may make per hour.
const RunsPerHour = 30

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(streamServer *stream.Server, rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Status endpoints (not rate limited - frequent polling)
	api.HandleFunc("/schedule", h.GetSchedule).Methods("GET")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")

	// Starting runs is rate limited per client
	limit := RateLimitMiddleware(rateLimiter, RunsPerHour)
	api.Handle("/runs", limit(http.HandlerFunc(h.CreateRun))).Methods("POST", "OPTIONS")

	// Live events
	api.HandleFunc("/events", streamServer.HandleEvents).Methods("GET")

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
