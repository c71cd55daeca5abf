package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/quito/pkg/mqtt"
	"github.com/saaga0h/quito/pkg/profile"
)

// ConnectionCounter reports how many managed clients are connected
type ConnectionCounter interface {
	ConnectedCount() (connected, total int)
}

// Checker provides health check functionality for the agent
type Checker struct {
	clients ConnectionCounter
	store   profile.Store
	logger  *slog.Logger
	timeout time.Duration
}

var _ ConnectionCounter = (*mqtt.Registry)(nil)

// NewChecker creates a new health checker. store may be nil when the
// profile store is disabled.
func NewChecker(clients ConnectionCounter, store profile.Store, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		clients: clients,
		store:   store,
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	MQTT      string `json:"mqtt"`
	Clients   int    `json:"clients"`
	Connected int    `json:"connected"`
	Profiles  string `json:"profiles"`
}

// HandlerFunc returns a liveness handler that does not check dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc returns a handler that reports broker connections
// and pings the profile store
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			MQTT:     "disconnected",
			Profiles: "disabled",
		}

		if h.clients != nil {
			services.Connected, services.Clients = h.clients.ConnectedCount()
			if services.Clients > 0 && services.Connected == services.Clients {
				services.MQTT = "connected"
			}
		}

		if h.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			if err := h.store.Ping(ctx); err != nil {
				h.logger.Warn("Profile store ping failed", "error", err)
				services.Profiles = "disconnected"
			} else {
				services.Profiles = "connected"
			}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if services.MQTT != "connected" || services.Profiles == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
