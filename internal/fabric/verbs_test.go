package fabric

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/identity"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/policy"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/router"
	"github.com/softsdn/network-service/internal/trace"
)

const testSecret = "fabric-test-secret"

type stubDeliverer struct{}

func (stubDeliverer) EnqueueEvent(string, *domain.Event) bool { return false }

func newTestServer() *Server {
	reg := registry.New()
	reg.WithAutoContractRules(nil)
	pol := policy.New()
	ig := integrity.New(testSecret)
	traces := trace.New(100, 100)
	watchers := trace.NewWatchers()
	rt := router.New(reg, pol, ig, traces, watchers, stubDeliverer{}, router.Config{}, logrus.StandardLogger())
	return New(reg, watchers, rt, identity.New(""), ig, logrus.StandardLogger())
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newAnonSession(s *Server) *session {
	return newSession("sess-1", nil, domain.Anonymous())
}

func newUserSession(s *Server, entitlements ...string) *session {
	return newSession("sess-1", nil, domain.Principal{Kind: domain.PrincipalUser, ID: "u1", Entitlements: entitlements})
}

func newAgentSession(s *Server, agentID string) *session {
	return newSession("sess-1", nil, domain.Principal{Kind: domain.PrincipalAgent, ID: agentID, AgentID: agentID})
}

func TestNodeRegisterAssistantRequiresAuth(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	resp := s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{Type: domain.NodeAssistant})})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "authentication required")
}

func TestNodeRegisterAssistantIDMustMatchPrincipal(t *testing.T) {
	s := newTestServer()
	sess := newAgentSession(s, "agent-x")
	resp := s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{Type: domain.NodeAssistant, ID: "agent-y"})})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "declared id must equal")
}

func TestNodeRegisterAssistantIDDefaultsToPrincipal(t *testing.T) {
	s := newTestServer()
	sess := newAgentSession(s, "agent-x")
	resp := s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{Type: domain.NodeAssistant})})
	require.True(t, resp.OK)
	n := resp.Payload.(*domain.Node)
	assert.Equal(t, "agent-x", n.ID)
	assert.Equal(t, "agent-x", sess.getNodeID())
}

func TestNodeRegisterServiceNeedsNoAuth(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	resp := s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "svc-a", Type: domain.NodeService})})
	require.True(t, resp.OK)
	assert.Equal(t, "svc-a", sess.getNodeID())
}

func TestNodeRegisterUnionsCapabilities(t *testing.T) {
	s := newTestServer()
	sess := newSession("sess-1", nil, domain.Principal{Kind: domain.PrincipalAgent, ID: "a", AgentID: "a", Capabilities: []string{"from-principal"}})
	resp := s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{Type: domain.NodeAssistant, Capabilities: []string{"from-payload"}})})
	require.True(t, resp.OK)
	n := resp.Payload.(*domain.Node)
	_, hasP := n.Capabilities["from-principal"]
	_, hasR := n.Capabilities["from-payload"]
	assert.True(t, hasP)
	assert.True(t, hasR)
}

func TestNodeHeartbeatRequiresOwnership(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "svc-a", Type: domain.NodeService})})

	other := newAnonSession(s)
	resp := s.verbNodeHeartbeat(other, Request{ID: "2", Payload: rawPayload(t, map[string]string{"id": "svc-a"})})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "owned by session")
}

func TestNodeHeartbeatSucceedsForOwner(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "svc-a", Type: domain.NodeService})})

	resp := s.verbNodeHeartbeat(sess, Request{ID: "2", Payload: rawPayload(t, map[string]string{})})
	assert.True(t, resp.OK)
}

func TestNodeUnregisterRequiresRegisteredNode(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	resp := s.verbNodeUnregister(sess, Request{ID: "1"})
	assert.False(t, resp.OK)
}

func TestEventSendSourceMustMatchSessionUnlessPrivileged(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "node-a", Type: domain.NodeService})})

	resp := s.verbEventSend(sess, Request{ID: "2", Payload: rawPayload(t, eventSendPayload{
		Payload: domain.Payload{Type: "chat.message"},
		Source:  "someone-else",
	})})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "source must equal")
}

func TestEventSendAllowsPrivilegedSourceOverride(t *testing.T) {
	s := newTestServer()
	sess := newAgentSession(s, "svc-agent")
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "svc-agent", Type: domain.NodeService})})

	resp := s.verbEventSend(sess, Request{ID: "2", Payload: rawPayload(t, eventSendPayload{
		Payload: domain.Payload{Type: "chat.message"},
		Source:  "svc-other",
	})})
	assert.True(t, resp.OK)
}

func TestContractCreateRequiresEntitlementForUser(t *testing.T) {
	s := newTestServer()
	sess := newUserSession(s)
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "node-a", Type: domain.NodeService})})

	resp := s.verbContractCreate(sess, Request{ID: "2", Payload: rawPayload(t, contractCreatePayload{To: "node-b"})})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "contracts.write")
}

func TestContractCreateAllowedWithEntitlement(t *testing.T) {
	s := newTestServer()
	sess := newUserSession(s, "contracts.write")
	s.verbNodeRegister(sess, Request{ID: "1", Payload: rawPayload(t, nodeRegisterPayload{ID: "node-a", Type: domain.NodeService})})

	resp := s.verbContractCreate(sess, Request{ID: "2", Payload: rawPayload(t, contractCreatePayload{To: "node-b"})})
	assert.True(t, resp.OK)
}

func TestSDNWatchDeniesAnonymous(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	resp := s.verbSDNWatch(sess, Request{ID: "1"})
	assert.False(t, resp.OK)
}

func TestSDNWatchRequiresEntitlementForUser(t *testing.T) {
	s := newTestServer()
	sess := newUserSession(s)
	resp := s.verbSDNWatch(sess, Request{ID: "1"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "events.read")
}

func TestSDNWatchThenUnwatch(t *testing.T) {
	s := newTestServer()
	sess := newUserSession(s, "events.read")
	resp := s.verbSDNWatch(sess, Request{ID: "1", Payload: rawPayload(t, sdnWatchPayload{})})
	require.True(t, resp.OK)
	sub := resp.Payload.(*domain.WatchSubscription)

	other := newSession("sess-2", nil, domain.Principal{Kind: domain.PrincipalUser, ID: "u2", Entitlements: []string{"events.read"}})
	denied := s.verbSDNUnwatch(other, Request{ID: "2", Payload: rawPayload(t, map[string]string{"id": sub.ID})})
	assert.False(t, denied.OK)

	ok := s.verbSDNUnwatch(sess, Request{ID: "3", Payload: rawPayload(t, map[string]string{"id": sub.ID})})
	assert.True(t, ok.OK)
}

func TestSDNTopologyDeniesAnonymousAllowsAgent(t *testing.T) {
	s := newTestServer()
	anon := newAnonSession(s)
	assert.False(t, s.verbSDNTopology(anon, Request{ID: "1"}).OK)

	agent := newAgentSession(s, "agent-z")
	assert.True(t, s.verbSDNTopology(agent, Request{ID: "2"}).OK)
}

func TestResolvePrincipalGrantsAgentTrustForValidServiceToken(t *testing.T) {
	s := newTestServer()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.ServiceClaims{ServiceName: "messaging"})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set(serviceTokenHeader, signed)

	p := s.resolvePrincipal(req)
	assert.Equal(t, domain.PrincipalAgent, p.Kind)
	assert.Equal(t, "messaging", p.AgentID)
}

func TestResolvePrincipalFallsBackToIntrospectionOnInvalidServiceToken(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set(serviceTokenHeader, "not-a-valid-token")

	p := s.resolvePrincipal(req)
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestHandleMessageUnknownVerb(t *testing.T) {
	s := newTestServer()
	sess := newAnonSession(s)
	raw, err := json.Marshal(Request{ID: "1", Verb: "nonsense:verb"})
	require.NoError(t, err)
	s.handleMessage(sess, raw)

	select {
	case p := <-sess.outbound:
		resp := p.Payload.(Response)
		assert.False(t, resp.OK)
		assert.Contains(t, resp.Error, "unknown verb")
	default:
		t.Fatal("expected a response push")
	}
}
