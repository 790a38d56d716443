package httpapi

import (
	"net/http"

	"github.com/softsdn/network-service/internal/domain"
)

type createNodeRequest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         domain.NodeType   `json:"type"`
	Capabilities []string          `json:"capabilities"`
	Endpoint     string            `json:"endpoint"`
	Metadata     map[string]string `json:"metadata"`
}

func (h *Handler) createNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	caps := make(map[string]struct{}, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps[c] = struct{}{}
	}
	n := &domain.Node{
		ID: req.ID, Name: req.Name, Type: req.Type,
		Capabilities: caps, Endpoint: req.Endpoint, Metadata: req.Metadata,
	}
	stored := h.registry.RegisterNode(n)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.ListNodes())
}

// nodeSubroute dispatches GET/.../{id}, DELETE /.../{id}, and
// POST /.../{id}/heartbeat plus capability/{cap} and type/{type}
// reads, mirroring the manual rest-segment splitting this codebase's
// account-resource routing uses.
func (h *Handler) nodeSubroute(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/registry/nodes/")
	if len(segs) == 0 {
		writeError(w, http.StatusBadRequest, errValidation("missing node id"))
		return
	}

	switch {
	case len(segs) == 1 && r.Method == http.MethodGet:
		n, ok := h.registry.GetNode(segs[0])
		if !ok {
			writeNotFound(w, "unknown node")
			return
		}
		writeJSON(w, http.StatusOK, n)
	case len(segs) == 1 && r.Method == http.MethodDelete:
		if !h.registry.UnregisterNode(segs[0]) {
			writeNotFound(w, "unknown node")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case len(segs) == 2 && segs[1] == "heartbeat" && r.Method == http.MethodPost:
		if !h.registry.Heartbeat(segs[0]) {
			writeNotFound(w, "unknown node")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case len(segs) == 2 && segs[0] == "capability":
		writeJSON(w, http.StatusOK, h.registry.NodesByCapability(segs[1]))
	case len(segs) == 2 && segs[0] == "type":
		writeJSON(w, http.StatusOK, h.registry.NodesByType(domain.NodeType(segs[1])))
	default:
		writeError(w, http.StatusBadRequest, errValidation("unsupported node sub-route"))
	}
}

type createContractRequest struct {
	From              string            `json:"from"`
	To                string            `json:"to"`
	AllowedEventTypes []string          `json:"allowedEventTypes"`
	Boundaries        []domain.Boundary `json:"boundaries"`
}

func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	p := h.principalFromRequest(r)
	if p.Kind == domain.PrincipalUser && !requireEntitlement(p, "contracts.write") {
		writeError(w, http.StatusForbidden, errAuthz("contracts.write"))
		return
	}
	var req createContractRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	if _, ok := h.registry.GetNode(req.From); !ok {
		writeError(w, http.StatusBadRequest, errValidation("source node must exist"))
		return
	}
	boundaries := make(map[domain.Boundary]struct{}, len(req.Boundaries))
	for _, b := range req.Boundaries {
		boundaries[b] = struct{}{}
	}
	c := &domain.Contract{From: req.From, To: req.To, AllowedEventTypes: req.AllowedEventTypes, Boundaries: boundaries}
	stored := h.registry.CreateContract(c)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) listContractsFor(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("nodeId")
	if nodeID == "" {
		writeError(w, http.StatusBadRequest, errValidation("nodeId query param required"))
		return
	}
	writeJSON(w, http.StatusOK, h.registry.ListContractsFor(nodeID))
}

func (h *Handler) deleteContract(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/registry/contracts/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing contract id"))
		return
	}
	if !h.registry.DeleteContract(segs[0]) {
		writeNotFound(w, "unknown contract")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type createBridgeRequest struct {
	Name            string            `json:"name"`
	Type            domain.BridgeType `json:"type"`
	Endpoint        string            `json:"endpoint"`
	SupportedEvents []string          `json:"supportedEventTypes"`
	Active          bool              `json:"active"`
}

func (h *Handler) createBridge(w http.ResponseWriter, r *http.Request) {
	var req createBridgeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	b := &domain.Bridge{Name: req.Name, Type: req.Type, Endpoint: req.Endpoint, SupportedEvents: req.SupportedEvents, Active: req.Active}
	stored := h.registry.RegisterBridge(b)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) listBridgesFor(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("eventType")
	writeJSON(w, http.StatusOK, h.registry.FindBridgesFor(eventType))
}

func (h *Handler) deleteBridge(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/registry/bridges/")
	if len(segs) != 1 {
		writeError(w, http.StatusBadRequest, errValidation("missing bridge id"))
		return
	}
	if !h.registry.DeleteBridge(segs[0]) {
		writeNotFound(w, "unknown bridge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) setBridgeActive(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r.URL.Path, "/api/registry/bridges/")
	if len(segs) != 2 || segs[1] != "active" {
		writeError(w, http.StatusBadRequest, errValidation("unsupported bridge sub-route"))
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation("malformed body"))
		return
	}
	if !h.registry.SetBridgeActive(segs[0], req.Active) {
		writeNotFound(w, "unknown bridge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
