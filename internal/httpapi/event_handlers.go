package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/softsdn/network-service/internal/domain"
)

type submitEventRequest struct {
	Payload        domain.Payload  `json:"payload"`
	RunID          string          `json:"runId"`
	Source         string          `json:"source"`
	Target         string          `json:"target,omitempty"`
	CausedBy       string          `json:"causedBy,omitempty"`
	Boundary       domain.Boundary `json:"boundary,omitempty"`
	SourceEntityID string          `json:"sourceEntityId,omitempty"`
	TargetEntityID string          `json:"targetEntityId,omitempty"`
	Hash           string          `json:"hash,omitempty"`
}

// submitEvent implements POST /api/events: 202 Accepted plus the
// resulting trace; routing outcomes are read off the trace, not the
// HTTP status. If the caller supplies no hash, the server seals the
// event itself, as the fabric's event:send verb does for events
// submitted over a session.
func (h *Handler) submitEvent(w http.ResponseWriter, r *http.Request) {
	var req submitEventRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, errValidation("source is required"))
		return
	}
	boundary := req.Boundary
	if boundary == "" {
		boundary = domain.BoundaryIntra
	}
	ev := &domain.Event{
		Payload: req.Payload,
		Wrapper: domain.Wrapper{
			ID:             uuid.NewString(),
			RunID:          req.RunID,
			Timestamp:      time.Now(),
			Source:         req.Source,
			Target:         req.Target,
			CausedBy:       req.CausedBy,
			Path:           []string{req.Source},
			Boundary:       boundary,
			SourceEntityID: req.SourceEntityID,
			TargetEntityID: req.TargetEntityID,
		},
		Hash: req.Hash,
	}
	if ev.Hash == "" {
		h.integrity.Seal(ev)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	t := h.router.Route(ctx, ev)

	writeJSON(w, http.StatusAccepted, map[string]any{"eventId": ev.Wrapper.ID, "trace": t})
}

func (h *Handler) listRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, h.router.GetRecentEvents(limit))
}

type computeHashRequest struct {
	Payload domain.Payload `json:"payload"`
	Wrapper domain.Wrapper `json:"wrapper"`
}

// computeHash implements POST /api/events/hash: a utility endpoint
// returning the Integrity Engine's computed hash without routing,
// for client-side interop testing of the canonical serialization.
func (h *Handler) computeHash(w http.ResponseWriter, r *http.Request) {
	var req computeHashRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	ev := domain.Event{Payload: req.Payload, Wrapper: req.Wrapper}
	hash := h.integrity.Compute(ev.Committed())
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.router.GetStats())
}

func (h *Handler) tracesForRun(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/events/traces/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing runId"))
		return
	}
	writeJSON(w, http.StatusOK, h.router.GetTracesForRun(segs[0]))
}

// eventSubroute handles GET /api/events/{id}/trace.
func (h *Handler) eventSubroute(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/events/")
	if len(segs) != 2 || segs[1] != "trace" {
		writeError(w, http.StatusBadRequest, errValidation("unsupported event sub-route"))
		return
	}
	t, ok := h.router.GetTrace(segs[0])
	if !ok {
		writeNotFound(w, "unknown event")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
