// Package api exposes the service's operational HTTP surface: the health
// endpoint and shared JSON response helpers. The websocket endpoint is
// mounted next to it by the server entrypoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each component probe in a verbose health check.
const healthCheckTimeout = 3 * time.Second

// Pinger reports connectivity of a backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ConnectionCounter reports how many live websocket connections the hub holds.
type ConnectionCounter interface {
	Connections() int
}

type Handler struct {
	db    Pinger
	redis Pinger
	hub   ConnectionCounter
}

func NewHandler() *Handler {
	return &Handler{}
}

// WithDatabase sets the database probe for verbose /health responses.
func (h *Handler) WithDatabase(db Pinger) *Handler {
	h.db = db
	return h
}

// WithRedis sets the redis probe for verbose /health responses.
func (h *Handler) WithRedis(redis Pinger) *Handler {
	h.redis = redis
	return h
}

// WithHub sets the connection hub for verbose /health responses.
func (h *Handler) WithHub(hub ConnectionCounter) *Handler {
	h.hub = hub
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		h.health(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	probes := []struct {
		name   string
		pinger Pinger
	}{
		{"database", h.db},
		{"redis", h.redis},
	}
	for _, p := range probes {
		if p.pinger == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := p.pinger.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Components[p.name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[p.name] = "healthy"
		}
	}

	if h.hub != nil {
		resp.Components["hub"] = fmt.Sprintf("healthy (%d connections)", h.hub.Connections())
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// ErrorResponse is the standard error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
