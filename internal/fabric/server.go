package fabric

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/identity"
	"github.com/softsdn/network-service/internal/integrity"
	"github.com/softsdn/network-service/internal/registry"
	"github.com/softsdn/network-service/internal/router"
	"github.com/softsdn/network-service/internal/trace"
)

// Server owns the set of live sessions and dispatches verbs. It implements router.SessionDeliverer and trace.Notifier so
// the Router can reach it without an import cycle.
type Server struct {
	registry   *registry.Registry
	watchers   *trace.Watchers
	router     *router.Router
	identity   *identity.Client
	sealEngine *integrity.Engine
	log        logrus.FieldLogger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

// New constructs a Fabric Front-End server.
func New(reg *registry.Registry, watchers *trace.Watchers, rt *router.Router, idc *identity.Client, ig *integrity.Engine, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		registry:   reg,
		watchers:   watchers,
		router:     rt,
		identity:   idc,
		sealEngine: ig,
		log:        log,
		sessions:   make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session's read/write
// pumps until it closes. The handshake resolves the principal via
// token introspection before any verb is processed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	principal := s.resolvePrincipal(r)

	sess := newSession(uuid.NewString(), conn, principal)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.WithField("session", sess.id).Info("fabric: session opened")

	go s.writePump(sess)
	s.readPump(sess)

	s.onSessionClose(sess)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return r.URL.Query().Get("token")
}

// serviceTokenHeader carries a pre-shared-key JWT for service-to-service
// calls, which are granted the same trust as an authenticated agent
// without a round trip to the Identity collaborator.
const serviceTokenHeader = "X-Service-Token"

// resolvePrincipal resolves the caller's principal, preferring a
// pre-shared-key service token over bearer-token introspection.
func (s *Server) resolvePrincipal(r *http.Request) domain.Principal {
	if tok := r.Header.Get(serviceTokenHeader); tok != "" {
		if p, err := identity.ValidateServiceToken(tok, s.sealEngine.Secret()); err == nil {
			return p
		}
	}
	return s.identity.Introspect(r.Context(), bearerToken(r))
}

// readPump processes each inbound message synchronously, in the order
// the websocket delivers it, so two event:send calls from the same
// session reach the Router's per-source queue in submission order.
func (s *Server) readPump(sess *session) {
	defer sess.close()
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(sess, data)
	}
}

func (s *Server) writePump(sess *session) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sess.closed:
			return
		case p := <-sess.outbound:
			if err := sess.conn.WriteJSON(p); err != nil {
				sess.close()
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.close()
				return
			}
		}
	}
}

func (s *Server) onSessionClose(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	// Detach the node's session binding; the node itself remains and
	// may be reattached on reconnect.
	if nodeID := sess.getNodeID(); nodeID != "" {
		s.registry.UpdateSession(nodeID, "")
		s.broadcast(Push{Verb: "network:node:disconnected", Payload: map[string]string{"nodeId": nodeID}})
	}
	s.watchers.DropForSession(sess.id)
	s.log.WithField("session", sess.id).Info("fabric: session closed")
}

func (s *Server) broadcast(p Push) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.enqueue(p)
	}
}

// EnqueueEvent implements router.SessionDeliverer: enqueue an
// event:received push onto the target node's attached session.
func (s *Server) EnqueueEvent(nodeID string, ev *domain.Event) bool {
	node, ok := s.registry.GetNode(nodeID)
	if !ok || node.SessionID == "" {
		return false
	}
	s.mu.RLock()
	sess, ok := s.sessions[node.SessionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	sess.enqueue(Push{Verb: "event:received", Payload: ev})
	return true
}

// NotifyWatcher implements trace.Notifier: push sdn:event to the
// watcher's owning session.
func (s *Server) NotifyWatcher(sessionID string, ev *domain.Event, t *domain.Trace) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.enqueue(Push{Verb: "sdn:event", Payload: map[string]any{"event": ev, "trace": t}})
}

// SetRouter wires the Router after construction, breaking the
// constructor cycle between fabric.Server (a router.SessionDeliverer)
// and router.Router (which needs a deliverer to be built).
func (s *Server) SetRouter(rt *router.Router) {
	s.router = rt
}

// routeEvent submits an event authored during this session's
// verb handling, giving the router a bounded context.
func (s *Server) routeEvent(ev *domain.Event) *domain.Trace {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.router.Route(ctx, ev)
}
