package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitpulse/gitpulse/internal/handlers"
	"github.com/gitpulse/gitpulse/internal/middleware"
)

// NewRouter constructs a ServeMux with the events API routes registered.
// wsHandler serves the realtime event stream upgrade endpoint.
func NewRouter(h *handlers.Handler, wsHandler http.Handler, cors middleware.CORSConfig) http.Handler {
	mux := http.NewServeMux()

	// Events CRUD
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("POST /api/v1/events", h.CreateEvent)
	mux.HandleFunc("GET /api/v1/events/{id}", h.GetEvent)
	mux.HandleFunc("PATCH /api/v1/events/{id}", h.UpdateEvent)
	mux.HandleFunc("DELETE /api/v1/events/{id}", h.DeleteEvent)

	// Manual reconciliation trigger
	mux.HandleFunc("POST /api/v1/events/task-generator/run", h.RunReconcile)

	// Realtime event stream
	mux.Handle("GET /ws/events", wsHandler)

	// Health check
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(cors)(mux))
}
