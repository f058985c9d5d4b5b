package httptransport

import (
	"net/http"

	"civicgate/internal/circuit"
	"civicgate/pkg/platform/httputil"
)

type readinessResponse struct {
	Status            string           `json:"status"`
	InShutdown        bool             `json:"in_shutdown"`
	ActiveConnections int              `json:"active_connections"`
	Dependencies      []circuit.Health `json:"dependencies"`
}

// handleHealthz is the liveness probe: alive as long as the process serves.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness: draining instances and instances with an
// open breaker are pulled from rotation.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{
		Status:            "ready",
		InShutdown:        h.shutdown.InShutdown(),
		ActiveConnections: h.shutdown.ActiveConnectionCount(),
		Dependencies:      h.breakers.Health(),
	}

	status := http.StatusOK
	if resp.InShutdown || !h.breakers.Healthy() {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
