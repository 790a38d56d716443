package httpapi

import (
	"net/http"

	"github.com/softsdn/network-service/internal/domain"
)

type policyRequest struct {
	Name       string             `json:"name"`
	Priority   int                `json:"priority"`
	Conditions []domain.Condition `json:"conditions"`
	Action     domain.Action      `json:"action"`
	Enabled    bool               `json:"enabled"`
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	p := domain.Policy{Name: req.Name, Priority: req.Priority, Conditions: req.Conditions, Action: req.Action, Enabled: req.Enabled}
	stored := h.policy.CreatePolicy(p)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.policy.ListPolicies())
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/policies/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing policy id"))
		return
	}
	p, ok := h.policy.GetPolicy(segs[0])
	if !ok {
		writeNotFound(w, "unknown policy")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/policies/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing policy id"))
		return
	}
	var req policyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	updated, ok := h.policy.UpdatePolicy(segs[0], func(p *domain.Policy) {
		p.Name = req.Name
		p.Priority = req.Priority
		p.Conditions = req.Conditions
		p.Action = req.Action
		p.Enabled = req.Enabled
	})
	if !ok {
		writeNotFound(w, "unknown policy")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/policies/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing policy id"))
		return
	}
	if !h.policy.DeletePolicy(segs[0]) {
		writeNotFound(w, "unknown policy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type testPolicyRequest struct {
	Payload  domain.Payload  `json:"payload"`
	Source   string          `json:"source"`
	Target   string          `json:"target,omitempty"`
	Boundary domain.Boundary `json:"boundary"`
	RunID    string          `json:"runId"`
}

// testPolicy implements POST /api/policies/test: evaluates the
// current policy set against a synthetic event without routing it.
func (h *Handler) testPolicy(w http.ResponseWriter, r *http.Request) {
	var req testPolicyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	ev := &domain.Event{
		Payload: req.Payload,
		Wrapper: domain.Wrapper{Source: req.Source, Target: req.Target, Boundary: req.Boundary, RunID: req.RunID},
	}
	decision := h.policy.Evaluate(ev)
	writeJSON(w, http.StatusOK, decision)
}
