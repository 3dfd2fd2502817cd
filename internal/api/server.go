package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ovidalb/webdesk/internal/live"
	"github.com/ovidalb/webdesk/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(liveServer *live.Server, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Apply rate limiting middleware to session mutation endpoints
	rateLimitedAPI := api.PathPrefix("").Subrouter()
	rateLimitedAPI.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))

	// Session endpoints (rate limited)
	rateLimitedAPI.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	rateLimitedAPI.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	rateLimitedAPI.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	rateLimitedAPI.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	rateLimitedAPI.HandleFunc("/sessions/{id}/click", h.ClickSession).Methods("POST", "OPTIONS")
	rateLimitedAPI.HandleFunc("/sessions/{id}/type", h.TypeSession).Methods("POST", "OPTIONS")

	// Capture endpoint (not rate limited - frequent polling)
	api.HandleFunc("/sessions/{id}/capture", h.CaptureSession).Methods("GET")

	// Live frame stream (not rate limited)
	api.HandleFunc("/sessions/{id}/live", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		liveServer.HandleLive(w, r, vars["id"])
	}).Methods("GET")

	// Audit log, as JSON and as a rendered table
	api.HandleFunc("/actions", h.ListActions).Methods("GET")
	r.HandleFunc("/actions", h.ActionsPage).Methods("GET")

	// Persisted captures
	if h.capturesDir != "" {
		r.PathPrefix("/captures/").Handler(
			http.StripPrefix("/captures/", http.FileServer(http.Dir(h.capturesDir))))
	}

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
