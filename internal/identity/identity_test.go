package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
)

func TestIntrospectReturnsAnonymousForEmptyToken(t *testing.T) {
	c := New("http://unused.invalid")
	p := c.Introspect(context.TODO(), "")
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestIntrospectReturnsAnonymousWhenBaseURLUnset(t *testing.T) {
	c := New("")
	p := c.Introspect(context.TODO(), "some-token")
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestIntrospectReturnsAnonymousOnInactiveResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectResponse{Active: false})
	}))
	defer srv.Close()

	c := New(srv.URL)
	p := c.Introspect(context.TODO(), "tok")
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestIntrospectReturnsAnonymousOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	p := c.Introspect(context.TODO(), "tok")
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestIntrospectMapsAgentPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectResponse{
			Active: true, Kind: "agent", ID: "p1", AgentID: "agent-x", OrgID: "org-1", Capabilities: []string{"cap.a"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	p := c.Introspect(context.TODO(), "tok")
	require.Equal(t, domain.PrincipalAgent, p.Kind)
	assert.Equal(t, "agent-x", p.AgentID)
	assert.Equal(t, "org-1", p.OrgID)
	assert.Contains(t, p.Capabilities, "cap.a")
}

func TestIntrospectMapsUserPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectResponse{
			Active: true, Kind: "user", ID: "u1", Email: "a@b.com", Entitlements: []string{"events.read"}, IsSuperAdmin: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	p := c.Introspect(context.TODO(), "tok")
	require.Equal(t, domain.PrincipalUser, p.Kind)
	assert.Equal(t, "a@b.com", p.Email)
	assert.True(t, p.IsSuperAdmin)
	assert.True(t, p.HasEntitlement("anything"), "super-admin bypasses entitlement checks")
}

func TestIntrospectUnknownKindIsAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectResponse{Active: true, Kind: "robot"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	p := c.Introspect(context.TODO(), "tok")
	assert.Equal(t, domain.PrincipalAnonymous, p.Kind)
}

func TestPreSharedKeyPrincipalIsAgentTrust(t *testing.T) {
	p := PreSharedKeyPrincipal("messaging-service")
	assert.Equal(t, domain.PrincipalAgent, p.Kind)
	assert.Equal(t, "messaging-service", p.AgentID)
}

func TestValidateServiceTokenRoundTrip(t *testing.T) {
	secret := []byte("network-secret")
	claims := ServiceClaims{ServiceName: "messaging"}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	p, err := ValidateServiceToken(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, "messaging", p.AgentID)
}

func TestValidateServiceTokenRejectsWrongSecret(t *testing.T) {
	secret := []byte("network-secret")
	claims := ServiceClaims{ServiceName: "messaging"}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = ValidateServiceToken(signed, []byte("wrong-secret"))
	assert.Error(t, err)
}

func TestValidateServiceTokenRejectsEmptySecret(t *testing.T) {
	_, err := ValidateServiceToken("whatever", nil)
	assert.Error(t, err)
}
