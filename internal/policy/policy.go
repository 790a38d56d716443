// Package policy implements the Policy Engine: a
// prioritized, in-memory store of policies and an evaluation function
// over events. The store uses the RWMutex/clone-on-read idiom this
// codebase's in-memory stores use elsewhere (internal/app/storage).
package policy

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softsdn/network-service/internal/domain"
)

// Engine holds the policy store and evaluates events against it.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*domain.Policy
	order    []string // insertion order, for ListPolicies

	regexCache sync.Map // pattern string -> *regexp.Regexp
}

// New constructs an Engine seeded with the default policies:
// allow-intra (100), log-inter (90), log-extra (90).
func New() *Engine {
	e := &Engine{policies: make(map[string]*domain.Policy)}
	now := time.Now()
	defaults := []*domain.Policy{
		{
			ID: uuid.NewString(), Name: "allow-intra", Priority: 100, Enabled: true,
			Conditions: []domain.Condition{{Field: domain.FieldBoundary, Operator: domain.OpEq, Value: string(domain.BoundaryIntra)}},
			Action:     domain.Action{Kind: domain.ActionAllow},
			CreatedAt:  now,
		},
		{
			ID: uuid.NewString(), Name: "log-inter", Priority: 90, Enabled: true,
			Conditions: []domain.Condition{{Field: domain.FieldBoundary, Operator: domain.OpEq, Value: string(domain.BoundaryInter)}},
			Action:     domain.Action{Kind: domain.ActionLog, LogLevel: "info"},
			CreatedAt:  now.Add(time.Microsecond),
		},
		{
			ID: uuid.NewString(), Name: "log-extra", Priority: 90, Enabled: true,
			Conditions: []domain.Condition{{Field: domain.FieldBoundary, Operator: domain.OpEq, Value: string(domain.BoundaryExtra)}},
			Action:     domain.Action{Kind: domain.ActionLog, LogLevel: "warn"},
			CreatedAt:  now.Add(2 * time.Microsecond),
		},
	}
	for _, p := range defaults {
		e.policies[p.ID] = p
		e.order = append(e.order, p.ID)
	}
	return e
}

// CreatePolicy inserts a new policy, assigning id/createdAt if unset.
func (e *Engine) CreatePolicy(p domain.Policy) *domain.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	stored := p.Clone()
	e.policies[stored.ID] = stored
	e.order = append(e.order, stored.ID)
	return stored.Clone()
}

// UpdatePolicy replaces an existing policy's mutable fields in place,
// preserving ID and CreatedAt.
func (e *Engine) UpdatePolicy(id string, mutate func(*domain.Policy)) (*domain.Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.policies[id]
	if !ok {
		return nil, false
	}
	clone := p.Clone()
	mutate(clone)
	clone.ID = p.ID
	clone.CreatedAt = p.CreatedAt
	e.policies[id] = clone
	return clone.Clone(), true
}

// DeletePolicy removes a policy by id.
func (e *Engine) DeletePolicy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[id]; !ok {
		return false
	}
	delete(e.policies, id)
	for i, pid := range e.order {
		if pid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true
}

// GetPolicy returns a copy of the policy with the given id.
func (e *Engine) GetPolicy(id string) (*domain.Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ListPolicies returns every policy, in insertion order.
func (e *Engine) ListPolicies() []*domain.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.Policy, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.policies[id].Clone())
	}
	return out
}

// Decision is the result of evaluating an event against the policy
// store.
type Decision struct {
	PolicyID string
	Action   domain.Action
}

// Evaluate selects the applicable policy: enabled policies sorted by
// descending priority, ties broken by earliest CreatedAt; the first
// policy whose conditions all match wins; default-allow otherwise.
func (e *Engine) Evaluate(ev *domain.Event) Decision {
	e.mu.RLock()
	candidates := make([]*domain.Policy, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Enabled {
			candidates = append(candidates, p)
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, p := range candidates {
		if e.matches(p, ev) {
			return Decision{PolicyID: p.ID, Action: p.Action}
		}
	}
	return Decision{Action: domain.Action{Kind: domain.ActionAllow}}
}

func (e *Engine) matches(p *domain.Policy, ev *domain.Event) bool {
	for _, c := range p.Conditions {
		if !e.matchCondition(c, ev) {
			return false
		}
	}
	return true
}

func (e *Engine) matchCondition(c domain.Condition, ev *domain.Event) bool {
	actual := extractField(c.Field, ev)
	switch c.Operator {
	case domain.OpEq:
		return actual == c.Value
	case domain.OpNeq:
		return actual != c.Value
	case domain.OpContains:
		return strings.Contains(actual, c.Value)
	case domain.OpStartsWith:
		return strings.HasPrefix(actual, c.Value)
	case domain.OpRegex:
		re, err := e.compileRegex(c.Value)
		if err != nil {
			return false // invalid regex => condition fails silently
		}
		return re.MatchString(actual)
	default:
		return false
	}
}

// compileRegex caches compiled patterns, the same caching idiom this
// codebase's metrics collector cache uses for per-key lazy init.
func (e *Engine) compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexCache.Store(pattern, re)
	return re, nil
}

func extractField(field domain.ConditionField, ev *domain.Event) string {
	switch field {
	case domain.FieldSource:
		return ev.Wrapper.Source
	case domain.FieldTarget:
		return ev.Wrapper.Target
	case domain.FieldEventType:
		return ev.Payload.Type
	case domain.FieldBoundary:
		return string(ev.Wrapper.Boundary)
	case domain.FieldRunID:
		return ev.Wrapper.RunID
	default:
		return ""
	}
}
