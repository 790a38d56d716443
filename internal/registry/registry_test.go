package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
)

func TestRegisterNodePreservesRegisteredAtOnReregister(t *testing.T) {
	r := New()
	n1 := r.RegisterNode(&domain.Node{ID: "node-a", Name: "a"})
	time.Sleep(time.Millisecond)
	n2 := r.RegisterNode(&domain.Node{ID: "node-a", Name: "a-renamed"})
	assert.Equal(t, n1.RegisteredAt, n2.RegisteredAt)
	assert.True(t, n2.LastHeartbeat.After(n1.LastHeartbeat) || n2.LastHeartbeat.Equal(n1.LastHeartbeat))
	assert.Equal(t, "a-renamed", n2.Name)
}

func TestHeartbeatUnknownNodeFails(t *testing.T) {
	r := New()
	assert.False(t, r.Heartbeat("missing"))
}

func TestUnregisterNodeCascadesContracts(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a"})
	r.RegisterNode(&domain.Node{ID: "node-b"})
	c := r.CreateContract(&domain.Contract{From: "node-a", To: "node-b"})
	require.NotEmpty(t, c.ID)

	assert.True(t, r.UnregisterNode("node-a"))
	_, ok := r.GetContract("node-a", "node-b")
	assert.False(t, ok)
}

func TestUnregisterNodeLeavesWildcardContractsInPlace(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "broadcaster"})
	r.RegisterNode(&domain.Node{ID: "listener"})
	r.CreateContract(&domain.Contract{From: "broadcaster", To: domain.WildcardTarget})

	assert.True(t, r.UnregisterNode("listener"))
	contracts := r.ListContractsFor("broadcaster")
	assert.Len(t, contracts, 1, "wildcard-target contract must survive an unrelated node's unregistration")
}

func TestBindEntityIsBijective(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a"})
	r.RegisterNode(&domain.Node{ID: "node-b"})

	require.True(t, r.BindEntity("node-a", "entity-1"))
	require.True(t, r.BindEntity("node-b", "entity-1"))

	nodeA, _ := r.GetNode("node-a")
	nodeB, _ := r.GetNode("node-b")
	assert.Empty(t, nodeA.EntityID, "rebinding must clear the previous node's binding")
	assert.Equal(t, "entity-1", nodeB.EntityID)

	resolved, ok := r.GetNodeByEntity("entity-1")
	require.True(t, ok)
	assert.Equal(t, "node-b", resolved.ID)
}

func TestUnbindEntity(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a"})
	r.BindEntity("node-a", "entity-1")
	assert.True(t, r.UnbindEntity("node-a"))
	_, ok := r.GetNodeByEntity("entity-1")
	assert.False(t, ok)
}

func TestCleanupStaleRemovesOldNodes(t *testing.T) {
	r := New()
	n := r.RegisterNode(&domain.Node{ID: "node-a"})
	require.NotNil(t, n)

	r.mu.Lock()
	r.nodes["node-a"].LastHeartbeat = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	removed := r.CleanupStale(time.Minute)
	assert.Equal(t, []string{"node-a"}, removed)
	_, ok := r.GetNode("node-a")
	assert.False(t, ok)
}

func TestCleanupExpiredContracts(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a"})
	r.RegisterNode(&domain.Node{ID: "node-b"})
	past := time.Now().Add(-time.Minute)
	r.CreateContract(&domain.Contract{From: "node-a", To: "node-b", ExpiresAt: &past})

	removed := r.CleanupExpiredContracts()
	assert.Len(t, removed, 1)
}

func TestAutoContractRuleFiresOnMatchingFirstRegistration(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "assistants"})
	contracts := r.ListContractsFor("assistants")
	require.Len(t, contracts, 1)
	assert.Equal(t, domain.WildcardTarget, contracts[0].To)
}

func TestAutoContractRuleDoesNotDuplicateOnReregister(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "assistants"})
	r.RegisterNode(&domain.Node{ID: "assistants"})
	contracts := r.ListContractsFor("assistants")
	assert.Len(t, contracts, 1)
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a", Name: "a"})
	topo := r.Snapshot()
	require.Len(t, topo.Nodes, 1)

	topo.Nodes[0].Name = "mutated"
	fresh, _ := r.GetNode("node-a")
	assert.Equal(t, "a", fresh.Name, "snapshot must be a deep copy")
}

func TestContractsFromExcludesExpired(t *testing.T) {
	r := New()
	r.RegisterNode(&domain.Node{ID: "node-a"})
	r.RegisterNode(&domain.Node{ID: "node-b"})
	past := time.Now().Add(-time.Minute)
	r.CreateContract(&domain.Contract{From: "node-a", To: "node-b", ExpiresAt: &past})
	r.CreateContract(&domain.Contract{From: "node-a", To: domain.WildcardTarget})

	active := r.ContractsFrom("node-a")
	assert.Len(t, active, 1)
	assert.Equal(t, domain.WildcardTarget, active[0].To)
}
