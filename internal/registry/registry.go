// Package registry implements the Network Service's authoritative
// in-memory directory of Nodes, Contracts, Bridges, and Entity
// bindings, using the RWMutex + clone-on-read store idiom
// this codebase's internal/app/storage package uses.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softsdn/network-service/internal/domain"
)

// AutoContractRule drives auto-creation of contracts on first
// registration of a node matching a standard communication pattern.
// Rules are data, not hard-coded in the Router.
type AutoContractRule struct {
	Name              string
	MatchesNodeID     func(nodeID string) bool
	From              string
	To                string
	AllowedEventTypes []string
	Boundaries        []domain.Boundary
}

// defaultAutoContractRules seeds the standard communication patterns:
// the assistants service broadcasts its intent justifications to the
// rest of the fabric.
func defaultAutoContractRules() []AutoContractRule {
	return []AutoContractRule{
		{
			Name:              "assistants-intent-broadcast",
			MatchesNodeID:     func(id string) bool { return id == "assistants" },
			From:              "assistants",
			To:                domain.WildcardTarget,
			AllowedEventTypes: []string{"assistant.intent.*", "assistant.action.observe"},
			Boundaries:        []domain.Boundary{domain.BoundaryIntra, domain.BoundaryInter},
		},
	}
}

// Registry is the authoritative in-memory directory.
type Registry struct {
	mu sync.RWMutex

	nodes     map[string]*domain.Node
	contracts map[string]*domain.Contract
	bridges   map[string]*domain.Bridge
	entityIdx map[string]string // entityID -> nodeID

	autoRules []AutoContractRule
}

// New constructs an empty Registry seeded with the default
// auto-contract rule table.
func New() *Registry {
	return &Registry{
		nodes:     make(map[string]*domain.Node),
		contracts: make(map[string]*domain.Contract),
		bridges:   make(map[string]*domain.Bridge),
		entityIdx: make(map[string]string),
		autoRules: defaultAutoContractRules(),
	}
}

// WithAutoContractRules overrides the default rule table, for tests
// and deployments with different standard patterns.
func (r *Registry) WithAutoContractRules(rules []AutoContractRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoRules = rules
}

// RegisterNode upserts a node. Re-registration preserves
// RegisteredAt but refreshes LastHeartbeat and reachability.
func (r *Registry) RegisterNode(n *domain.Node) *domain.Node {
	r.mu.Lock()
	now := time.Now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	existing, exists := r.nodes[n.ID]
	if exists {
		n.RegisteredAt = existing.RegisteredAt
		if n.EntityID == "" {
			n.EntityID = existing.EntityID
			n.EntityBoundAt = existing.EntityBoundAt
		}
	} else {
		n.RegisteredAt = now
	}
	n.LastHeartbeat = now
	if n.Capabilities == nil {
		n.Capabilities = make(map[string]struct{})
	}
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	r.nodes[n.ID] = n.Clone()
	stored := r.nodes[n.ID]
	r.mu.Unlock()

	if !exists {
		r.applyAutoContracts(stored)
	}
	return stored.Clone()
}

func (r *Registry) applyAutoContracts(n *domain.Node) {
	for _, rule := range r.autoRules {
		if rule.MatchesNodeID == nil || !rule.MatchesNodeID(n.ID) {
			continue
		}
		boundaries := make(map[domain.Boundary]struct{}, len(rule.Boundaries))
		for _, b := range rule.Boundaries {
			boundaries[b] = struct{}{}
		}
		candidate := &domain.Contract{
			From:              rule.From,
			To:                rule.To,
			AllowedEventTypes: rule.AllowedEventTypes,
			Boundaries:        boundaries,
		}
		if r.hasDuplicateContract(candidate) {
			continue
		}
		if _, ok := r.GetNode(rule.From); !ok {
			continue // source must exist
		}
		_ = r.CreateContract(candidate)
	}
}

func (r *Registry) hasDuplicateContract(candidate *domain.Contract) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contracts {
		if c.SameShape(candidate) {
			return true
		}
	}
	return false
}

// Heartbeat refreshes LastHeartbeat; returns false if the node is
// unknown.
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	n.LastHeartbeat = time.Now()
	return true
}

// UpdateSession attaches or detaches a live session on a node.
func (r *Registry) UpdateSession(id, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	n.SessionID = sessionID
	return true
}

// UnregisterNode removes a node and cascades: drops contracts where
// from==id or to==id, except wildcard-target contracts (to=="*"),
// which remain valid for remaining sources; unbinds its entity.
func (r *Registry) UnregisterNode(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false
	}
	if n.EntityID != "" {
		delete(r.entityIdx, n.EntityID)
	}
	delete(r.nodes, id)
	for cid, c := range r.contracts {
		if c.To == domain.WildcardTarget {
			continue // wildcard-target contracts stay in place
		}
		if c.From == id || c.To == id {
			delete(r.contracts, cid)
		}
	}
	return true
}

// BindEntity maintains the entity<->node bijection: rebinding moves the entity and clears the previous
// node's binding atomically.
func (r *Registry) BindEntity(nodeID, entityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return false
	}
	if prevNodeID, bound := r.entityIdx[entityID]; bound && prevNodeID != nodeID {
		if prev, ok := r.nodes[prevNodeID]; ok {
			prev.EntityID = ""
			prev.EntityBoundAt = time.Time{}
		}
	}
	if n.EntityID != "" && n.EntityID != entityID {
		delete(r.entityIdx, n.EntityID)
	}
	n.EntityID = entityID
	n.EntityBoundAt = time.Now()
	r.entityIdx[entityID] = nodeID
	return true
}

// UnbindEntity clears a node's entity binding.
func (r *Registry) UnbindEntity(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return false
	}
	if n.EntityID != "" {
		delete(r.entityIdx, n.EntityID)
	}
	n.EntityID = ""
	n.EntityBoundAt = time.Time{}
	return true
}

// GetNodeByEntity resolves a node via its bound entity id.
func (r *Registry) GetNodeByEntity(entityID string) (*domain.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodeID, ok := r.entityIdx[entityID]
	if !ok {
		return nil, false
	}
	n, ok := r.nodes[nodeID]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// GetNode returns a copy of the node with the given id.
func (r *Registry) GetNode(id string) (*domain.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// ListNodes returns a copy of every node.
func (r *Registry) ListNodes() []*domain.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByCapability returns every node declaring the given capability.
func (r *Registry) NodesByCapability(cap string) []*domain.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Node
	for _, n := range r.nodes {
		if n.HasCapability(cap) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByType returns every node of the given type.
func (r *Registry) NodesByType(t domain.NodeType) []*domain.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Node
	for _, n := range r.nodes {
		if n.Type == t {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateContract creates a new contract; the source must exist, the
// target may be absent or "*".
func (r *Registry) CreateContract(c *domain.Contract) *domain.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Boundaries == nil {
		c.Boundaries = make(map[domain.Boundary]struct{})
	}
	r.contracts[c.ID] = c
	return c
}

// DeleteContract removes a contract by id.
func (r *Registry) DeleteContract(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contracts[id]; !ok {
		return false
	}
	delete(r.contracts, id)
	return true
}

// GetContract returns the contract from `from` to `to`, if any.
func (r *Registry) GetContract(from, to string) (*domain.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contracts {
		if c.From == from && c.To == to {
			return c, true
		}
	}
	return nil, false
}

// ListContractsFor returns every contract where nodeID is the source
// or the target.
func (r *Registry) ListContractsFor(nodeID string) []*domain.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Contract
	for _, c := range r.contracts {
		if c.From == nodeID || c.To == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// ContractsFrom returns every non-expired contract with the given
// source, used by the Router's contract fan-out resolution.
func (r *Registry) ContractsFrom(from string) []*domain.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	var out []*domain.Contract
	for _, c := range r.contracts {
		if c.From == from && !c.Expired(now) {
			out = append(out, c)
		}
	}
	return out
}

// RegisterBridge upserts a bridge.
func (r *Registry) RegisterBridge(b *domain.Bridge) *domain.Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	r.bridges[b.ID] = b
	return b
}

// SetBridgeActive toggles a bridge's active flag.
func (r *Registry) SetBridgeActive(id string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bridges[id]
	if !ok {
		return false
	}
	b.Active = active
	return true
}

// DeleteBridge removes a bridge.
func (r *Registry) DeleteBridge(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bridges[id]; !ok {
		return false
	}
	delete(r.bridges, id)
	return true
}

// FindBridgesFor returns every active bridge supporting eventType.
func (r *Registry) FindBridgesFor(eventType string) []*domain.Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Bridge
	for _, b := range r.bridges {
		if b.Active && b.SupportsEventType(eventType) {
			out = append(out, b)
		}
	}
	return out
}

// CleanupStale removes nodes whose heartbeat exceeds timeout, cascading
// contract and entity cleanup as in UnregisterNode. Returns the removed node ids.
func (r *Registry) CleanupStale(timeout time.Duration) []string {
	r.mu.Lock()
	now := time.Now()
	var stale []string
	for id, n := range r.nodes {
		if n.Stale(now, timeout) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.UnregisterNode(id)
	}
	return stale
}

// CleanupExpiredContracts removes contracts whose ExpiresAt has passed.
func (r *Registry) CleanupExpiredContracts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var removed []string
	for id, c := range r.contracts {
		if c.Expired(now) {
			delete(r.contracts, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Topology is an atomic snapshot of the Registry's state.
type Topology struct {
	Nodes     []*domain.Node
	Contracts []*domain.Contract
	Bridges   []*domain.Bridge
	Timestamp time.Time
}

// Snapshot returns a consistent Topology; no torn reads are possible
// since it is taken under a single RLock.
func (r *Registry) Snapshot() Topology {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]*domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	contracts := make([]*domain.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })

	bridges := make([]*domain.Bridge, 0, len(r.bridges))
	for _, b := range r.bridges {
		bridges = append(bridges, b)
	}
	sort.Slice(bridges, func(i, j int) bool { return bridges[i].ID < bridges[j].ID })

	return Topology{Nodes: nodes, Contracts: contracts, Bridges: bridges, Timestamp: time.Now()}
}
