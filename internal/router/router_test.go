package router

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/policy"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/trace"
)

const testSecret = "test-network-secret"

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered map[string][]*domain.Event
	hasConn   map[string]bool
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{delivered: make(map[string][]*domain.Event), hasConn: make(map[string]bool)}
}

func (f *fakeDeliverer) EnqueueEvent(nodeID string, ev *domain.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasConn[nodeID] {
		return false
	}
	f.delivered[nodeID] = append(f.delivered[nodeID], ev)
	return true
}

func (f *fakeDeliverer) connect(nodeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasConn[nodeID] = true
}

func (f *fakeDeliverer) deliveredTo(nodeID string) []*domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[nodeID]
}

func newHarness() (*Router, *registry.Registry, *policy.Engine, *integrity.Engine, *fakeDeliverer) {
	reg := registry.New()
	reg.WithAutoContractRules(nil)
	pol := policy.New()
	ig := integrity.New(testSecret)
	traces := trace.New(100, 100)
	watchers := trace.NewWatchers()
	deliverer := newFakeDeliverer()
	rt := New(reg, pol, ig, traces, watchers, deliverer, Config{}, logrus.StandardLogger())
	return rt, reg, pol, ig, deliverer
}

func seal(ig *integrity.Engine, ev *domain.Event) *domain.Event {
	ig.Seal(ev)
	return ev
}

func TestContractFanOutDeliversToSession(t *testing.T) {
	rt, reg, _, ig, deliverer := newHarness()
	reg.RegisterNode(&domain.Node{ID: "messaging", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "assistants", Type: domain.NodeService})
	deliverer.connect("assistants")
	reg.UpdateSession("assistants", "sess-assistants")
	reg.CreateContract(&domain.Contract{
		From: "messaging", To: "assistants",
		AllowedEventTypes: []string{"message.new"},
		Boundaries:        map[domain.Boundary]struct{}{domain.BoundaryIntra: {}},
	})

	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "message.new", Data: map[string]any{"conversationId": "c1"}},
		Wrapper: domain.Wrapper{ID: "ev-1", RunID: "r1", Source: "messaging", Boundary: domain.BoundaryIntra, Path: []string{"messaging"}},
	})

	tr := rt.Route(context.Background(), ev)
	require.Equal(t, domain.TraceDelivered, tr.Status)
	require.Len(t, tr.Path, 1)
	assert.Equal(t, "assistants", tr.Path[0].Node)
	assert.Equal(t, domain.HopDeliver, tr.Path[0].Action)
	assert.Len(t, deliverer.deliveredTo("assistants"), 1)
}

func TestPolicyDenyDropsEventWithReason(t *testing.T) {
	rt, reg, pol, ig, deliverer := newHarness()
	reg.RegisterNode(&domain.Node{ID: "integrations", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "logging", Type: domain.NodeService})
	deliverer.connect("logging")
	reg.UpdateSession("logging", "sess-logging")
	denyPolicy := pol.CreatePolicy(domain.Policy{
		Name: "block-extra", Priority: 200, Enabled: true,
		Conditions: []domain.Condition{{Field: domain.FieldBoundary, Operator: domain.OpEq, Value: string(domain.BoundaryExtra)}},
		Action:     domain.Action{Kind: domain.ActionDeny, Reason: "external blocked"},
	})

	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "webhook.received"},
		Wrapper: domain.Wrapper{ID: "ev-2", Source: "integrations", Target: "logging", Boundary: domain.BoundaryExtra, Path: []string{"integrations"}},
	})

	tr := rt.Route(context.Background(), ev)
	require.Equal(t, domain.TraceDropped, tr.Status)
	assert.Equal(t, "external blocked", tr.Error)
	require.Len(t, tr.Path, 1)
	assert.Equal(t, domain.HopDrop, tr.Path[0].Action)
	assert.Equal(t, denyPolicy.ID, tr.Path[0].PolicyID)
	assert.Empty(t, deliverer.deliveredTo("logging"))
}

func TestTamperedEventFailsIntegrityCheck(t *testing.T) {
	rt, reg, _, ig, _ := newHarness()
	reg.RegisterNode(&domain.Node{ID: "node-a", Type: domain.NodeService})

	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "chat.message", Data: map[string]any{"foo": "bar"}},
		Wrapper: domain.Wrapper{ID: "ev-3", Source: "node-a", Boundary: domain.BoundaryIntra, Path: []string{"node-a"}},
	})
	ev.Payload.Data["foo"] = "tampered"

	tr := rt.Route(context.Background(), ev)
	assert.Equal(t, domain.TraceError, tr.Status)
	assert.Equal(t, "invalid hash", tr.Error)
	assert.Empty(t, tr.Path)
}

func TestEntityRoutingDropsWhenEntityUnbound(t *testing.T) {
	rt, reg, _, ig, _ := newHarness()
	reg.RegisterNode(&domain.Node{ID: "dispatcher", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "asst1", Type: domain.NodeAssistant})
	reg.BindEntity("asst1", "ent_X")
	reg.UnbindEntity("asst1")

	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "chat.message"},
		Wrapper: domain.Wrapper{ID: "ev-4", Source: "dispatcher", TargetEntityID: "ent_X", Boundary: domain.BoundaryIntra, Path: []string{"dispatcher"}},
	})

	tr := rt.Route(context.Background(), ev)
	assert.Equal(t, domain.TraceDropped, tr.Status)
	assert.Contains(t, tr.Error, "target entity not connected")
}

func TestWildcardContractBroadcastsToAllButSource(t *testing.T) {
	rt, reg, _, ig, deliverer := newHarness()
	reg.RegisterNode(&domain.Node{ID: "assistants", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "messaging", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "logging", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "integrations", Type: domain.NodeService})
	for _, n := range []string{"messaging", "logging", "integrations"} {
		deliverer.connect(n)
		reg.UpdateSession(n, "sess-"+n)
	}
	reg.CreateContract(&domain.Contract{
		From: "assistants", To: domain.WildcardTarget,
		AllowedEventTypes: []string{"assistant.intent.claim"},
		Boundaries:        map[domain.Boundary]struct{}{domain.BoundaryIntra: {}, domain.BoundaryInter: {}},
	})

	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "assistant.intent.claim"},
		Wrapper: domain.Wrapper{ID: "ev-5", Source: "assistants", Boundary: domain.BoundaryIntra, Path: []string{"assistants"}},
	})

	tr := rt.Route(context.Background(), ev)
	require.Equal(t, domain.TraceDelivered, tr.Status)
	got := make(map[string]bool)
	for _, hop := range tr.Path {
		got[hop.Node] = true
	}
	assert.Equal(t, map[string]bool{"messaging": true, "logging": true, "integrations": true}, got)
	assert.NotContains(t, got, "assistants")
}

// Events sharing a source must finalize in submission order even
// while routing across sources runs concurrently.
func TestPerSourceOrderPreserved(t *testing.T) {
	rt, reg, _, ig, deliverer := newHarness()
	reg.RegisterNode(&domain.Node{ID: "source-a", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "source-b", Type: domain.NodeService})
	reg.RegisterNode(&domain.Node{ID: "sink", Type: domain.NodeService})
	deliverer.connect("sink")
	reg.UpdateSession("sink", "sess-sink")

	const n = 20
	var wg sync.WaitGroup
	for _, source := range []string{"source-a", "source-b"} {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				ev := seal(ig, &domain.Event{
					Payload: domain.Payload{Type: "chat.message", Data: map[string]any{"from": source, "seq": i}},
					Wrapper: domain.Wrapper{ID: source + "-" + strconv.Itoa(i), Source: source, Target: "sink", Boundary: domain.BoundaryIntra, Path: []string{source}},
				})
				tr := rt.Route(context.Background(), ev)
				assert.Equal(t, domain.TraceDelivered, tr.Status)
			}
		}(source)
	}
	wg.Wait()

	delivered := deliverer.deliveredTo("sink")
	require.Len(t, delivered, 2*n)
	next := map[string]int{"source-a": 0, "source-b": 0}
	for _, ev := range delivered {
		source := ev.Payload.Data["from"].(string)
		assert.Equal(t, next[source], ev.Payload.Data["seq"], "delivery order must match submission order for source %s", source)
		next[source]++
	}
}

func TestRouteWithAlreadyCancelledContextReturnsErrorOrFinalizes(t *testing.T) {
	rt, reg, _, ig, _ := newHarness()
	reg.RegisterNode(&domain.Node{ID: "node-a", Type: domain.NodeService})
	ev := seal(ig, &domain.Event{
		Payload: domain.Payload{Type: "chat.message"},
		Wrapper: domain.Wrapper{ID: "ev-timeout", Source: "node-a", Boundary: domain.BoundaryIntra, Path: []string{"node-a"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := rt.Route(ctx, ev)
	require.NotNil(t, tr)
}
