package router

import "github.com/softsdn/network-service/internal/domain"

// SimulationResult is the dry-run outcome of POST /api/sdn/simulate:
// target resolution and policy evaluation without delivery or trace
// persistence.
type SimulationResult struct {
	VerifiedHash bool              `json:"verifiedHash"`
	Targets      []string          `json:"targets"`
	PolicyID     string            `json:"policyId,omitempty"`
	Action       domain.ActionKind `json:"action"`
	Error        string            `json:"error,omitempty"`
}

// Simulate runs the routing pipeline from the integrity check through
// policy evaluation, skipping the delivery loop and trace persistence.
func (r *Router) Simulate(ev *domain.Event) SimulationResult {
	verified := r.integrity.Verify(ev)
	if !verified {
		return SimulationResult{VerifiedHash: false, Error: "invalid hash"}
	}
	if _, ok := r.registry.GetNode(ev.Wrapper.Source); !ok {
		return SimulationResult{VerifiedHash: true, Error: "source not found"}
	}
	targets, err := r.resolveTargets(ev)
	if err != nil {
		return SimulationResult{VerifiedHash: true, Error: err.Error()}
	}
	decision := r.policy.Evaluate(ev)
	if decision.Action.Kind == domain.ActionRoute && decision.Action.RouteTo != "" {
		targets = []string{decision.Action.RouteTo}
	}
	return SimulationResult{
		VerifiedHash: true,
		Targets:      targets,
		PolicyID:     decision.PolicyID,
		Action:       decision.Action.Kind,
	}
}
