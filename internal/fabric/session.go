package fabric

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/platform/metrics"
)

// outboundQueueSize bounds the per-session outbound channel.
const outboundQueueSize = 256

// session is one persistent connection to a participant.
type session struct {
	id        string
	conn      *websocket.Conn
	principal domain.Principal

	mu        sync.Mutex
	nodeID    string
	watchIDs  map[string]struct{}

	outbound  chan Push
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn *websocket.Conn, principal domain.Principal) *session {
	return &session{
		id:        id,
		conn:      conn,
		principal: principal,
		watchIDs:  make(map[string]struct{}),
		outbound:  make(chan Push, outboundQueueSize),
		closed:    make(chan struct{}),
	}
}

func (s *session) setNodeID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeID = id
}

func (s *session) getNodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeID
}

func (s *session) addWatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchIDs[id] = struct{}{}
}

func (s *session) removeWatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchIDs, id)
}

// enqueue pushes msg onto the outbound queue, dropping the oldest
// queued message on overflow.
func (s *session) enqueue(p Push) {
	select {
	case s.outbound <- p:
		return
	default:
	}
	select {
	case <-s.outbound:
	default:
	}
	select {
	case s.outbound <- p:
	default:
		metrics.RecordDeliveryFailed(s.getNodeID())
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}
