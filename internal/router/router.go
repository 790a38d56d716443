// Package router implements the Router: the core algorithm
// that takes an Event, authenticates it via the Integrity Engine,
// resolves targets via the Registry, applies the Policy Engine,
// delivers to each target over session or HTTP, records a Trace, and
// notifies watchers. Per-source ordering is enforced via a bank of
// lazily-created single-goroutine queues.
package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/platform/apierr"
	"github.com/softsdn/network-service/internal/platform/metrics"
	"github.com/softsdn/network-service/internal/policy"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/trace"

	"github.com/sirupsen/logrus"
)

// SessionDeliverer enqueues an "event:received" message onto a
// node's attached session, owned by the Fabric Front-End.
type SessionDeliverer interface {
	// EnqueueEvent returns ok=false if the node has no attached
	// session; hasSession distinguishes "no session" from "session
	// present but the queue is full" (the latter still returns true:
	// delivery is successful on enqueue, backpressure is the Fabric's
	// concern).
	EnqueueEvent(nodeID string, ev *domain.Event) (hasSession bool)
}

// Router is the core routing engine.
type Router struct {
	registry   *registry.Registry
	policy     *policy.Engine
	integrity  *integrity.Engine
	traces     *trace.Store
	watchers   *trace.Watchers
	deliverer  SessionDeliverer
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger

	mu     sync.Mutex
	queues map[string]chan routeRequest
}

// Config controls Router construction.
type Config struct {
	DeliveryTimeout time.Duration
	// HTTPRatePerSecond bounds outbound HTTP deliveries, grounded on
	// the same golang.org/x/time/rate token-bucket idiom used for
	// client-facing rate limiting elsewhere in this stack's HTTP tier.
	HTTPRatePerSecond float64
}

// New constructs a Router wired to its dependencies.
func New(reg *registry.Registry, pol *policy.Engine, ig *integrity.Engine, traces *trace.Store, watchers *trace.Watchers, deliverer SessionDeliverer, cfg Config, log logrus.FieldLogger) *Router {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	if cfg.HTTPRatePerSecond <= 0 {
		cfg.HTTPRatePerSecond = 100
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{
		registry:   reg,
		policy:     pol,
		integrity:  ig,
		traces:     traces,
		watchers:   watchers,
		deliverer:  deliverer,
		httpClient: &http.Client{Timeout: cfg.DeliveryTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.HTTPRatePerSecond), int(cfg.HTTPRatePerSecond)),
		log:        log,
		queues:     make(map[string]chan routeRequest),
	}
}

type routeRequest struct {
	ev     *domain.Event
	result chan *domain.Trace
}

// Route submits an event for routing, blocking until its trace is
// finalized. Events sharing a source are processed by a single
// per-source goroutine so that finalization order matches submission
// order; different sources route concurrently.
func (r *Router) Route(ctx context.Context, ev *domain.Event) *domain.Trace {
	queue := r.queueFor(ev.Wrapper.Source)
	req := routeRequest{ev: ev, result: make(chan *domain.Trace, 1)}
	select {
	case queue <- req:
	case <-ctx.Done():
		return &domain.Trace{EventID: ev.Wrapper.ID, RunID: ev.Wrapper.RunID, Status: domain.TraceError, Error: "routing cancelled"}
	}
	select {
	case t := <-req.result:
		return t
	case <-ctx.Done():
		return &domain.Trace{EventID: ev.Wrapper.ID, RunID: ev.Wrapper.RunID, Status: domain.TraceError, Error: "routing cancelled"}
	}
}

func (r *Router) queueFor(source string) chan routeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[source]
	if ok {
		return q
	}
	q = make(chan routeRequest, 256)
	r.queues[source] = q
	go r.drain(q)
	return q
}

func (r *Router) drain(q chan routeRequest) {
	for req := range q {
		t := r.route(req.ev)
		req.result <- t
	}
}

// route executes the routing pipeline for a single event.
func (r *Router) route(ev *domain.Event) *domain.Trace {
	start := time.Now()
	t := &domain.Trace{EventID: ev.Wrapper.ID, RunID: ev.Wrapper.RunID, Status: domain.TracePending}
	defer func() {
		t.TotalDurationMs = float64(time.Since(start).Microseconds()) / 1000.0
		metrics.ObserveRouteDuration(time.Since(start))
		metrics.RecordRouted(string(t.Status))
		r.traces.RecordEvent(ev)
		r.traces.PutTrace(t)
		r.watchers.Notify(r.watcherNotifier(), ev, t)
	}()

	// 1. Integrity check.
	if !r.integrity.Verify(ev) {
		metrics.RecordHashFailure()
		metrics.RecordDropped(ev.Payload.Type, string(ev.Wrapper.Boundary), "invalid hash")
		t.Status = domain.TraceError
		t.Error = "invalid hash"
		return t
	}

	// 2. Source validation.
	if _, ok := r.registry.GetNode(ev.Wrapper.Source); !ok {
		metrics.RecordDropped(ev.Payload.Type, string(ev.Wrapper.Boundary), "source not found")
		t.Status = domain.TraceError
		t.Error = "source not found"
		return t
	}

	// 3. Target resolution.
	targets, resolutionErr := r.resolveTargets(ev)
	if resolutionErr != nil {
		ae, _ := resolutionErr.(*apierr.Error)
		reason := resolutionErr.Error()
		if ae != nil {
			reason = ae.Message
		}
		metrics.RecordDropped(ev.Payload.Type, string(ev.Wrapper.Boundary), reason)
		t.Status = domain.TraceDropped
		t.Error = reason
		return t
	}

	// 4. Policy evaluation.
	decision := r.policy.Evaluate(ev)
	switch decision.Action.Kind {
	case domain.ActionDeny:
		reason := decision.Action.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		t.Path = append(t.Path, domain.TraceHop{Node: ev.Wrapper.Source, PolicyID: decision.PolicyID, Action: domain.HopDrop, TimestampMs: time.Now().UnixMilli()})
		metrics.RecordDropped(ev.Payload.Type, string(ev.Wrapper.Boundary), reason)
		t.Status = domain.TraceDropped
		t.Error = reason
		return t
	case domain.ActionRoute:
		if decision.Action.RouteTo != "" {
			targets = []string{decision.Action.RouteTo}
		}
	case domain.ActionTransform:
		if err := policy.ApplyTransform(ev, decision.Action.Mapping); err != nil {
			r.log.WithError(err).Warn("router: transform action failed, continuing pass-through")
		}
		t.Path = append(t.Path, domain.TraceHop{Node: ev.Wrapper.Source, PolicyID: decision.PolicyID, Action: domain.HopTransform, TimestampMs: time.Now().UnixMilli()})
	case domain.ActionAllow, domain.ActionLog:
		// continue
	}

	// 5. Per-target delivery loop.
	delivered := false
	for _, targetID := range targets {
		hopStart := time.Now()
		node, ok := r.registry.GetNode(targetID)
		if !ok {
			t.Path = append(t.Path, domain.TraceHop{Node: targetID, Action: domain.HopDrop, TimestampMs: hopStart.UnixMilli()})
			continue
		}
		ev.Wrapper.Path = append(ev.Wrapper.Path, targetID)
		ok = r.deliver(node, ev)
		action := domain.HopDeliver
		if !ok {
			action = domain.HopDrop
		} else {
			delivered = true
		}
		t.Path = append(t.Path, domain.TraceHop{
			Node:        targetID,
			PolicyID:    decision.PolicyID,
			Action:      action,
			TimestampMs: hopStart.UnixMilli(),
			DurationMs:  float64(time.Since(hopStart).Microseconds()) / 1000.0,
		})
	}

	// 6. Finalize.
	if delivered {
		t.Status = domain.TraceDelivered
	} else {
		t.Status = domain.TraceDropped
		if t.Error == "" {
			t.Error = "no target reachable"
		}
	}
	return t
}

// resolveTargets picks the delivery targets: entity binding first,
// then an explicit target, then contract fan-out.
func (r *Router) resolveTargets(ev *domain.Event) ([]string, error) {
	if ev.Wrapper.TargetEntityID != "" {
		node, ok := r.registry.GetNodeByEntity(ev.Wrapper.TargetEntityID)
		if !ok {
			return nil, apierr.New(apierr.Routing, "target entity not connected")
		}
		return []string{node.ID}, nil
	}
	if ev.Wrapper.Target != "" {
		return []string{ev.Wrapper.Target}, nil
	}
	return r.resolveByContractFanOut(ev)
}

func (r *Router) resolveByContractFanOut(ev *domain.Event) ([]string, error) {
	contracts := r.registry.ContractsFrom(ev.Wrapper.Source)
	seen := make(map[string]struct{})
	var targets []string

	addTarget := func(id string) {
		if id == ev.Wrapper.Source {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	for _, c := range contracts {
		if !c.MatchesEventType(ev.Payload.Type) {
			continue
		}
		if !c.BoundaryAllowed(ev.Wrapper.Boundary) {
			continue
		}
		if c.To == domain.WildcardTarget {
			for _, n := range r.registry.ListNodes() {
				addTarget(n.ID)
			}
			continue
		}
		addTarget(c.To)
	}

	if len(targets) == 0 {
		return nil, apierr.New(apierr.Routing, "no valid targets")
	}
	return targets, nil
}

// deliver pushes the event to a node: session enqueue takes priority
// over HTTP endpoint delivery.
func (r *Router) deliver(node *domain.Node, ev *domain.Event) bool {
	if r.deliverer != nil && node.SessionID != "" {
		if hasSession := r.deliverer.EnqueueEvent(node.ID, ev); hasSession {
			return true
		}
	}
	if node.Endpoint == "" {
		return false
	}
	return r.deliverHTTP(node.Endpoint, ev)
}

func (r *Router) deliverHTTP(endpoint string, ev *domain.Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.httpClient.Timeout)
	defer cancel()
	if err := r.limiter.Wait(ctx); err != nil {
		return false
	}

	body, err := encodeEvent(ev)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", ev.Wrapper.ID)
	req.Header.Set("X-Run-Id", ev.Wrapper.RunID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// watcherNotifier adapts whatever SessionDeliverer also implements
// trace.Notifier; the Fabric Front-End implements both interfaces on
// the same session table.
func (r *Router) watcherNotifier() trace.Notifier {
	if n, ok := r.deliverer.(trace.Notifier); ok {
		return n
	}
	return noopNotifier{}
}

type noopNotifier struct{}

func (noopNotifier) NotifyWatcher(string, *domain.Event, *domain.Trace) {}

// GetTrace, GetTracesForRun, GetRecentEvents, GetEventsForRun, GetStats
// expose the trace store queries.
func (r *Router) GetTrace(eventID string) (*domain.Trace, bool)   { return r.traces.GetTrace(eventID) }
func (r *Router) GetTracesForRun(runID string) []*domain.Trace    { return r.traces.GetTracesForRun(runID) }
func (r *Router) GetRecentEvents(limit int) []*domain.Event       { return r.traces.GetRecentEvents(limit) }
func (r *Router) GetEventsForRun(runID string, limit int) []*domain.Event {
	return r.traces.GetEventsForRun(runID, limit)
}
func (r *Router) GetStats() trace.Stats { return r.traces.GetStats() }
