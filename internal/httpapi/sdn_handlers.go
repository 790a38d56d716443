package httpapi

import (
	"net/http"

	"github.com/softsdn/network-service/internal/domain"
)

// sdnTopology implements GET /api/sdn/topology: user needs
// topology.read; agents allowed; anonymous denied.
func (h *Handler) sdnTopology(w http.ResponseWriter, r *http.Request) {
	p := h.principalFromRequest(r)
	if p.Kind == domain.PrincipalAnonymous {
		writeError(w, http.StatusUnauthorized, errAuth("authentication required"))
		return
	}
	if p.Kind == domain.PrincipalUser && !requireEntitlement(p, "topology.read") {
		writeError(w, http.StatusForbidden, errAuthz("topology.read"))
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

// sdnSummary returns condensed counts derived from the topology
// snapshot plus router stats.
func (h *Handler) sdnSummary(w http.ResponseWriter, r *http.Request) {
	p := h.principalFromRequest(r)
	if p.Kind == domain.PrincipalAnonymous {
		writeError(w, http.StatusUnauthorized, errAuth("authentication required"))
		return
	}
	topo := h.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodeCount":     len(topo.Nodes),
		"contractCount": len(topo.Contracts),
		"bridgeCount":   len(topo.Bridges),
		"stats":         h.router.GetStats(),
	})
}

type graphEdge struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	EventTypes []string          `json:"eventTypes"`
	Boundaries []domain.Boundary `json:"boundaries"`
}

// sdnGraph reshapes the topology into a {nodes, edges} view for
// visualization clients.
func (h *Handler) sdnGraph(w http.ResponseWriter, r *http.Request) {
	p := h.principalFromRequest(r)
	if p.Kind == domain.PrincipalAnonymous {
		writeError(w, http.StatusUnauthorized, errAuth("authentication required"))
		return
	}
	topo := h.registry.Snapshot()
	edges := make([]graphEdge, 0, len(topo.Contracts))
	for _, c := range topo.Contracts {
		boundaries := make([]domain.Boundary, 0, len(c.Boundaries))
		for b := range c.Boundaries {
			boundaries = append(boundaries, b)
		}
		edges = append(edges, graphEdge{From: c.From, To: c.To, EventTypes: c.AllowedEventTypes, Boundaries: boundaries})
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": topo.Nodes, "edges": edges})
}

type simulateRequest struct {
	Payload domain.Payload `json:"payload"`
	Wrapper domain.Wrapper `json:"wrapper"`
	Hash    string         `json:"hash"`
}

func (h *Handler) sdnSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	ev := &domain.Event{Payload: req.Payload, Wrapper: req.Wrapper, Hash: req.Hash}
	writeJSON(w, http.StatusOK, h.router.Simulate(ev))
}

func (h *Handler) sdnTrace(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/sdn/trace/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing eventId"))
		return
	}
	t, ok := h.router.GetTrace(segs[0])
	if !ok {
		writeNotFound(w, "unknown event")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) sdnTracesForRun(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/sdn/traces/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing runId"))
		return
	}
	writeJSON(w, http.StatusOK, h.router.GetTracesForRun(segs[0]))
}

// sdnFlow returns the events and traces for a run together, a
// convenience composition over the existing stores.
func (h *Handler) sdnFlow(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/sdn/flow/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing runId"))
		return
	}
	runID := segs[0]
	writeJSON(w, http.StatusOK, map[string]any{
		"events": h.router.GetEventsForRun(runID, 500),
		"traces": h.router.GetTracesForRun(runID),
	})
}
