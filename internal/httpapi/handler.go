package httpapi

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/identity"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/platform/metrics"
	"github.com/softsdn/network-service/internal/policy"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/router"
)

// Handler is the Network Service's HTTP request/response surface,
// authorized the same way as the fabric verb table.
type Handler struct {
	registry  *registry.Registry
	policy    *policy.Engine
	integrity *integrity.Engine
	router    *router.Router
	identity  *identity.Client
	log       logrus.FieldLogger
}

// New constructs the HTTP handler.
func New(reg *registry.Registry, pol *policy.Engine, ig *integrity.Engine, rt *router.Router, idc *identity.Client, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{registry: reg, policy: pol, integrity: ig, router: rt, identity: idc, log: log}
}

// Mux builds the *http.ServeMux exposing the full API surface.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", metrics.Handler())

	mountRoutes(mux,
		route{"/api/registry/nodes", http.MethodPost, h.createNode},
		route{"/api/registry/nodes", http.MethodGet, h.listNodes},
		route{"/api/registry/nodes/", http.MethodGet, h.nodeSubroute},
		route{"/api/registry/nodes/", http.MethodPost, h.nodeSubroute},
		route{"/api/registry/nodes/", http.MethodDelete, h.nodeSubroute},

		route{"/api/registry/contracts", http.MethodPost, h.createContract},
		route{"/api/registry/contracts", http.MethodGet, h.listContractsFor},
		route{"/api/registry/contracts/", http.MethodDelete, h.deleteContract},

		route{"/api/registry/bridges", http.MethodPost, h.createBridge},
		route{"/api/registry/bridges", http.MethodGet, h.listBridgesFor},
		route{"/api/registry/bridges/", http.MethodDelete, h.deleteBridge},
		route{"/api/registry/bridges/", http.MethodPost, h.setBridgeActive},

		route{"/api/events", http.MethodPost, h.submitEvent},
		route{"/api/events", http.MethodGet, h.listRecentEvents},
		route{"/api/events/hash", http.MethodPost, h.computeHash},
		route{"/api/events/stats", http.MethodGet, h.eventStats},
		route{"/api/events/traces/", http.MethodGet, h.tracesForRun},
		route{"/api/events/", http.MethodGet, h.eventSubroute},

		route{"/api/policies", http.MethodPost, h.createPolicy},
		route{"/api/policies", http.MethodGet, h.listPolicies},
		route{"/api/policies/test", http.MethodPost, h.testPolicy},
		route{"/api/policies/", http.MethodGet, h.getPolicy},
		route{"/api/policies/", http.MethodPut, h.updatePolicy},
		route{"/api/policies/", http.MethodDelete, h.deletePolicy},

		route{"/api/sdn/topology", http.MethodGet, h.sdnTopology},
		route{"/api/sdn/summary", http.MethodGet, h.sdnSummary},
		route{"/api/sdn/graph", http.MethodGet, h.sdnGraph},
		route{"/api/sdn/simulate", http.MethodPost, h.sdnSimulate},
		route{"/api/sdn/trace/", http.MethodGet, h.sdnTrace},
		route{"/api/sdn/traces/", http.MethodGet, h.sdnTracesForRun},
		route{"/api/sdn/flow/", http.MethodGet, h.sdnFlow},
	)

	return mux
}

// serviceTokenHeader carries a pre-shared-key JWT for service-to-service
// calls, which are granted the same trust as an authenticated agent
// without a round trip to the Identity collaborator.
const serviceTokenHeader = "X-Service-Token"

// principalFromRequest resolves the caller's principal, preferring a
// pre-shared-key service token over bearer-token introspection, degrading to anonymous.
func (h *Handler) principalFromRequest(r *http.Request) domain.Principal {
	if tok := r.Header.Get(serviceTokenHeader); tok != "" {
		if p, err := identity.ValidateServiceToken(tok, h.integrity.Secret()); err == nil {
			return p
		}
	}
	token := bearerToken(r)
	if token == "" {
		return domain.Anonymous()
	}
	return h.identity.Introspect(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// requireEntitlement checks a user entitlement; super-admins and
// agents bypass entitlement checks.
func requireEntitlement(p domain.Principal, entitlement string) bool {
	return p.HasEntitlement(entitlement)
}
