package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/softsdn/network-service/internal/domain"
)

// Turn-taking is a protocol built entirely out of ordinary events: a
// claim event asks for the floor in a conversation, competing claims
// are resolved by priority
// with earliest-claimed-at breaking ties, and defer/observe/respond
// events record the outcome. The Relay Client aggregates claims
// locally per conversation so callers can block on the outcome instead
// of hand-rolling the race themselves.

const (
	turnClaim   = "assistant.intent.claim"
	turnDefer   = "assistant.intent.defer"
	turnObserve = "assistant.action.observe"
	turnRespond = "assistant.action.respond"
)

// claimDetail is the nested `claim` object carried by an
// assistant.intent.claim payload.
type claimDetail struct {
	ClaimedAt time.Time `json:"claimedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Priority  int       `json:"priority"`
}

type claimRecord struct {
	AssistantKey string
	Priority     int
	ClaimedAt    time.Time
	ExpiresAt    time.Time
}

type conversationClaims struct {
	mu      sync.Mutex
	records map[string]claimRecord // assistantKey -> record
}

// claimAggregator tracks in-flight claims per conversation so
// WaitForClaimWindow can evaluate the winner once the window elapses.
type claimAggregator struct {
	mu            sync.Mutex
	conversations map[string]*conversationClaims
}

func newClaimAggregator() *claimAggregator {
	return &claimAggregator{conversations: make(map[string]*conversationClaims)}
}

func (a *claimAggregator) conversation(id string) *conversationClaims {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.conversations[id]
	if !ok {
		c = &conversationClaims{records: make(map[string]claimRecord)}
		a.conversations[id] = c
	}
	return c
}

func (c *conversationClaims) register(r claimRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[r.AssistantKey] = r
}

// winner returns the highest-priority non-expired claim, earliest
// claimedAt breaking ties.
func (c *conversationClaims) winner(now time.Time) (claimRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best claimRecord
	found := false
	for _, r := range c.records {
		if now.After(r.ExpiresAt) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		if r.Priority > best.Priority || (r.Priority == best.Priority && r.ClaimedAt.Before(best.ClaimedAt)) {
			best = r
		}
	}
	return best, found
}

// EmitClaim asks for the floor in a conversation, emitting an
// assistant.intent.claim event carrying {justification, claim:
// {claimedAt, expiresAt, priority}}. windowMs sets the claim's
// expiresAt and is carried in the payload; the aggregator itself is
// driven by WaitForClaimWindow's own timer.
func (c *Client) EmitClaim(conversationID, assistantKey, entityID, justification, runID string, priority, windowMs int) (SendResult, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(windowMs) * time.Millisecond)
	c.registerExternalClaim(conversationID, assistantKey, priority, now, expiresAt)
	return c.Send(domain.Payload{
		Type: turnClaim,
		Data: map[string]any{
			"conversationId": conversationID,
			"assistantKey":   assistantKey,
			"entityId":       entityID,
			"justification":  justification,
			"windowMs":       windowMs,
			"claim": claimDetail{
				ClaimedAt: now,
				ExpiresAt: expiresAt,
				Priority:  priority,
			},
		},
	}, runID, SendOptions{})
}

// ClaimOutcome is the result of a claim window: whether the caller won
// the floor, and who did if not.
type ClaimOutcome struct {
	ShouldProceed    bool   `json:"shouldProceed"`
	WinningAssistant string `json:"winningAssistant,omitempty"`
}

// WaitForClaimWindow blocks until windowMs elapses, then resolves the
// floor against every claim observed (locally emitted or received via
// an incoming assistant.intent.claim event) during the window.
func (c *Client) WaitForClaimWindow(conversationID, assistantKey string, ownPriority int, windowMs int) (ClaimOutcome, error) {
	now := time.Now()
	deadline := now.Add(time.Duration(windowMs) * time.Millisecond)
	c.registerExternalClaim(conversationID, assistantKey, ownPriority, now, deadline)
	timer := time.NewTimer(time.Duration(windowMs) * time.Millisecond)
	defer timer.Stop()
	<-timer.C

	conv := c.claims.conversation(conversationID)
	winner, ok := conv.winner(deadline)
	if !ok {
		return ClaimOutcome{}, fmt.Errorf("relay: no claims recorded for conversation %s", conversationID)
	}
	if winner.AssistantKey == assistantKey {
		return ClaimOutcome{ShouldProceed: true}, nil
	}
	return ClaimOutcome{ShouldProceed: false, WinningAssistant: winner.AssistantKey}, nil
}

// registerExternalClaim records a claim observed either locally or via
// a received assistant.intent.claim event, keyed by assistantKey.
func (c *Client) registerExternalClaim(conversationID, assistantKey string, priority int, claimedAt, expiresAt time.Time) {
	conv := c.claims.conversation(conversationID)
	conv.register(claimRecord{
		AssistantKey: assistantKey,
		Priority:     priority,
		ClaimedAt:    claimedAt,
		ExpiresAt:    expiresAt,
	})
}

// observeClaimEvent feeds incoming assistant.intent.claim events from
// other participants into the local aggregator so WaitForClaimWindow
// sees the full field, not just this client's own claim.
func (c *Client) observeClaimEvent(ev *domain.Event) {
	if ev.Payload.Type != turnClaim {
		return
	}
	conversationID, _ := ev.Payload.Data["conversationId"].(string)
	assistantKey, _ := ev.Payload.Data["assistantKey"].(string)
	if conversationID == "" || assistantKey == "" {
		return
	}

	claim, _ := ev.Payload.Data["claim"].(map[string]any)
	if claim == nil {
		return
	}

	claimedAt := ev.Wrapper.Timestamp
	if s, ok := claim["claimedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			claimedAt = t
		}
	}
	expiresAt := claimedAt
	if s, ok := claim["expiresAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			expiresAt = t
		}
	}
	priority := 0
	if p, ok := claim["priority"].(float64); ok {
		priority = int(p)
	}
	c.registerExternalClaim(conversationID, assistantKey, priority, claimedAt, expiresAt)
}

// EmitDefer yields the floor explicitly, e.g. after losing a claim
// window or voluntarily ceding turn.
func (c *Client) EmitDefer(conversationID, assistantKey, toAssistantKey, runID string) (SendResult, error) {
	return c.Send(domain.Payload{
		Type: turnDefer,
		Data: map[string]any{
			"conversationId": conversationID,
			"assistantKey":   assistantKey,
			"toAssistantKey": toAssistantKey,
		},
	}, runID, SendOptions{})
}

// EmitObserve records that an assistant is watching a conversation
// without claiming the floor.
func (c *Client) EmitObserve(conversationID, assistantKey, runID string) (SendResult, error) {
	return c.Send(domain.Payload{
		Type: turnObserve,
		Data: map[string]any{
			"conversationId": conversationID,
			"assistantKey":   assistantKey,
		},
	}, runID, SendOptions{})
}

// EmitRespond records the floor-holder's response, closing out the
// turn.
func (c *Client) EmitRespond(conversationID, assistantKey, runID string, response map[string]any) (SendResult, error) {
	data := map[string]any{
		"conversationId": conversationID,
		"assistantKey":   assistantKey,
	}
	for k, v := range response {
		data[k] = v
	}
	return c.Send(domain.Payload{Type: turnRespond, Data: data}, runID, SendOptions{})
}
