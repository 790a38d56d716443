// Package identity implements the client to the external Identity
// collaborator's token introspection endpoint.
// The Identity service itself is out of scope; this package specifies
// only the interface the core consumes.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/softsdn/network-service/internal/domain"
)

// Client introspects bearer tokens against the Identity collaborator.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client with a short request timeout; introspection
// failure degrades to the anonymous principal rather than blocking the
// handshake.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active       bool     `json:"active"`
	Kind         string   `json:"kind"` // "agent" or "user"
	ID           string   `json:"id"`
	AgentID      string   `json:"agentId,omitempty"`
	OrgID        string   `json:"orgId,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Entitlements []string `json:"entitlements,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	Orgs         []string `json:"orgs,omitempty"`
	IsSuperAdmin bool     `json:"isSuperAdmin,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Introspect resolves a bearer token to a Principal. A missing token,
// a network error, or an inactive response all degrade to the
// anonymous principal rather than propagating an error —
// callers that need to distinguish "token present but rejected" from
// "no token" should check the token before calling.
func (c *Client) Introspect(ctx context.Context, token string) domain.Principal {
	if token == "" || c.baseURL == "" {
		return domain.Anonymous()
	}

	body, err := json.Marshal(introspectRequest{Token: token})
	if err != nil {
		return domain.Anonymous()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return domain.Anonymous()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Anonymous()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Anonymous()
	}

	var out introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || !out.Active {
		return domain.Anonymous()
	}

	switch out.Kind {
	case "agent":
		return domain.Principal{
			Kind:         domain.PrincipalAgent,
			ID:           out.ID,
			AgentID:      out.AgentID,
			Name:         out.Name,
			OrgID:        out.OrgID,
			Capabilities: out.Capabilities,
		}
	case "user":
		return domain.Principal{
			Kind:         domain.PrincipalUser,
			ID:           out.ID,
			Email:        out.Email,
			Name:         out.Name,
			Entitlements: out.Entitlements,
			Roles:        out.Roles,
			Orgs:         out.Orgs,
			IsSuperAdmin: out.IsSuperAdmin,
		}
	default:
		return domain.Anonymous()
	}
}

// PreSharedKeyPrincipal returns the agent-level-trust principal used
// for service-to-service pre-shared-key calls.
func PreSharedKeyPrincipal(serviceName string) domain.Principal {
	return domain.Principal{Kind: domain.PrincipalAgent, ID: serviceName, AgentID: serviceName, Name: serviceName}
}
