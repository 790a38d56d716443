package fabric

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/integrity"
)

func (s *Server) handleMessage(sess *session, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		sess.enqueueResponse(errResponse("", errInvalid("malformed request")))
		return
	}

	var resp Response
	switch req.Verb {
	case "node:register":
		resp = s.verbNodeRegister(sess, req)
	case "node:heartbeat":
		resp = s.verbNodeHeartbeat(sess, req)
	case "node:unregister":
		resp = s.verbNodeUnregister(sess, req)
	case "event:send":
		resp = s.verbEventSend(sess, req)
	case "contract:create":
		resp = s.verbContractCreate(sess, req)
	case "sdn:watch":
		resp = s.verbSDNWatch(sess, req)
	case "sdn:unwatch":
		resp = s.verbSDNUnwatch(sess, req)
	case "sdn:topology":
		resp = s.verbSDNTopology(sess, req)
	default:
		resp = errResponse(req.ID, errInvalid("unknown verb"))
	}
	resp.ID = req.ID
	sess.enqueueResponse(resp)
}

func (s *session) enqueueResponse(r Response) {
	s.enqueue(Push{Verb: "response", Payload: r})
}

type nodeRegisterPayload struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         domain.NodeType   `json:"type"`
	Capabilities []string          `json:"capabilities"`
	Endpoint     string            `json:"endpoint"`
	Metadata     map[string]string `json:"metadata"`
}

// verbNodeRegister handles node:register: assistant
// types must declare an id matching principal.agentId; capabilities
// from the principal and the request are unioned.
func (s *Server) verbNodeRegister(sess *session, req Request) Response {
	var p nodeRegisterPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, errInvalid("malformed node:register payload"))
	}

	if p.Type == domain.NodeAssistant {
		if sess.principal.Kind == domain.PrincipalAnonymous {
			return errResponse(req.ID, errAuth("authentication required for assistant nodes"))
		}
		if p.ID != "" && p.ID != sess.principal.AgentID {
			return errResponse(req.ID, errValidation("declared id must equal principal.agentId for assistant nodes"))
		}
		if p.ID == "" {
			p.ID = sess.principal.AgentID
		}
	}

	caps := make(map[string]struct{})
	for _, c := range p.Capabilities {
		caps[c] = struct{}{}
	}
	for _, c := range sess.principal.Capabilities {
		caps[c] = struct{}{}
	}

	n := &domain.Node{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Capabilities: caps,
		Endpoint:     p.Endpoint,
		SessionID:    sess.id,
		Metadata:     p.Metadata,
	}
	stored := s.registry.RegisterNode(n)
	sess.setNodeID(stored.ID)
	s.broadcast(Push{Verb: "network:node:joined", Payload: map[string]string{"nodeId": stored.ID}})
	return okResponse(req.ID, stored)
}

func (s *Server) verbNodeHeartbeat(sess *session, req Request) Response {
	var p struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(req.Payload, &p)
	if sess.principal.Kind == domain.PrincipalAnonymous && p.ID == "" && sess.getNodeID() == "" {
		return errResponse(req.ID, errAuth("authentication required"))
	}
	nodeID := p.ID
	if nodeID == "" {
		nodeID = sess.getNodeID()
	}
	if nodeID != sess.getNodeID() {
		return errResponse(req.ID, errAuth("node must be owned by session"))
	}
	ok := s.registry.Heartbeat(nodeID)
	if !ok {
		return errResponse(req.ID, errRouting("unknown node"))
	}
	return okResponse(req.ID, map[string]bool{"ok": true})
}

func (s *Server) verbNodeUnregister(sess *session, req Request) Response {
	nodeID := sess.getNodeID()
	if nodeID == "" {
		return errResponse(req.ID, errValidation("session has no registered node"))
	}
	s.registry.UnregisterNode(nodeID)
	sess.setNodeID("")
	s.broadcast(Push{Verb: "network:node:left", Payload: map[string]string{"nodeId": nodeID}})
	return okResponse(req.ID, map[string]bool{"ok": true})
}

type eventSendPayload struct {
	Payload        domain.Payload  `json:"payload"`
	RunID          string          `json:"runId"`
	Target         string          `json:"target,omitempty"`
	CausedBy       string          `json:"causedBy,omitempty"`
	Boundary       domain.Boundary `json:"boundary,omitempty"`
	Source         string          `json:"source,omitempty"`
	TargetEntityID string          `json:"targetEntityId,omitempty"`
	SourceEntityID string          `json:"sourceEntityId,omitempty"`
}

// verbEventSend handles event:send: source must equal the session's
// node id unless the caller is privileged (agents carry service-level
// trust).
func (s *Server) verbEventSend(sess *session, req Request) Response {
	var p eventSendPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, errInvalid("malformed event:send payload"))
	}
	source := p.Source
	if source == "" {
		source = sess.getNodeID()
	}
	privileged := sess.principal.Kind == domain.PrincipalAgent
	if source != sess.getNodeID() && !privileged {
		return errResponse(req.ID, errAuth("source must equal session's node id"))
	}
	if source == "" {
		return errResponse(req.ID, errValidation("no source node"))
	}

	boundary := p.Boundary
	if boundary == "" {
		boundary = domain.BoundaryIntra
	}

	ev := &domain.Event{
		Payload: p.Payload,
		Wrapper: domain.Wrapper{
			ID:             uuid.NewString(),
			RunID:          p.RunID,
			Timestamp:      time.Now(),
			Source:         source,
			Target:         p.Target,
			CausedBy:       p.CausedBy,
			Path:           []string{source},
			Boundary:       boundary,
			SourceEntityID: p.SourceEntityID,
			TargetEntityID: p.TargetEntityID,
		},
	}
	s.sealer().Seal(ev)

	t := s.routeEvent(ev)
	return okResponse(req.ID, map[string]any{"eventId": ev.Wrapper.ID, "trace": t})
}

// sealer exposes the integrity engine for the rare cases the fabric
// itself must seal an event (event:send from a raw payload, rather
// than an already-sealed event submitted over HTTP).
func (s *Server) sealer() *integrity.Engine { return s.sealEngine }

type contractCreatePayload struct {
	To                string            `json:"to"`
	AllowedEventTypes []string          `json:"allowedEventTypes"`
	Boundaries        []domain.Boundary `json:"boundaries"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
}

// verbContractCreate handles contract:create: user
// principals need contracts.write; agents/services are allowed.
func (s *Server) verbContractCreate(sess *session, req Request) Response {
	if sess.principal.Kind == domain.PrincipalUser && !sess.principal.HasEntitlement("contracts.write") {
		return errResponse(req.ID, errAuthz("contracts.write"))
	}
	from := sess.getNodeID()
	if from == "" {
		return errResponse(req.ID, errValidation("session has no registered node"))
	}
	var p contractCreatePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, errInvalid("malformed contract:create payload"))
	}
	boundaries := make(map[domain.Boundary]struct{}, len(p.Boundaries))
	for _, b := range p.Boundaries {
		boundaries[b] = struct{}{}
	}
	c := &domain.Contract{
		From:              from,
		To:                p.To,
		AllowedEventTypes: p.AllowedEventTypes,
		Boundaries:        boundaries,
		ExpiresAt:         p.ExpiresAt,
	}
	stored := s.registry.CreateContract(c)
	return okResponse(req.ID, stored)
}

type sdnWatchPayload struct {
	RunID     string `json:"runId,omitempty"`
	Source    string `json:"source,omitempty"`
	EventType string `json:"eventType,omitempty"`
}

// verbSDNWatch handles sdn:watch: user needs
// events.read; anonymous denied; agents allowed.
func (s *Server) verbSDNWatch(sess *session, req Request) Response {
	if sess.principal.Kind == domain.PrincipalAnonymous {
		return errResponse(req.ID, errAuth("authentication required"))
	}
	if sess.principal.Kind == domain.PrincipalUser && !sess.principal.HasEntitlement("events.read") {
		return errResponse(req.ID, errAuthz("events.read"))
	}
	var p sdnWatchPayload
	_ = json.Unmarshal(req.Payload, &p)
	sub := s.watchers.Watch(sess.id, domain.WatchFilters{RunID: p.RunID, Source: p.Source, EventType: p.EventType})
	sess.addWatch(sub.ID)
	return okResponse(req.ID, sub)
}

func (s *Server) verbSDNUnwatch(sess *session, req Request) Response {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, errInvalid("malformed sdn:unwatch payload"))
	}
	if !s.watchers.Unwatch(p.ID, sess.id) {
		return errResponse(req.ID, errRouting("unknown or unowned subscription"))
	}
	sess.removeWatch(p.ID)
	return okResponse(req.ID, map[string]bool{"ok": true})
}

// verbSDNTopology handles sdn:topology: user needs
// topology.read; agents allowed; anonymous denied.
func (s *Server) verbSDNTopology(sess *session, req Request) Response {
	if sess.principal.Kind == domain.PrincipalAnonymous {
		return errResponse(req.ID, errAuth("authentication required"))
	}
	if sess.principal.Kind == domain.PrincipalUser && !sess.principal.HasEntitlement("topology.read") {
		return errResponse(req.ID, errAuthz("topology.read"))
	}
	return okResponse(req.ID, s.registry.Snapshot())
}
