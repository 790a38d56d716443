// Package trace implements the Router's bounded trace and event
// history stores: a ring buffer of recent events and a
// capacity-bounded trace map that evicts oldest-by-insertion first,
// using the same RWMutex store idiom as internal/registry.
package trace

import (
	"container/list"
	"sync"

	"github.com/softsdn/network-service/internal/domain"
)

// Stats summarizes trace outcomes.
type Stats struct {
	Delivered int
	Dropped   int
	Error     int
	Pending   int
}

// Store holds event history and finalized traces with bounded capacity.
type Store struct {
	mu sync.RWMutex

	maxEvents int
	events    *list.List // front = newest
	eventByID map[string]*domain.Event

	maxTraces  int
	traces     map[string]*domain.Trace
	traceOrder *list.List // front = oldest
	traceElem  map[string]*list.Element

	stats Stats
}

// New constructs a Store bounded by maxEventHistory/maxTraceHistory.
func New(maxEventHistory, maxTraceHistory int) *Store {
	if maxEventHistory <= 0 {
		maxEventHistory = 10_000
	}
	if maxTraceHistory <= 0 {
		maxTraceHistory = 5_000
	}
	return &Store{
		maxEvents:  maxEventHistory,
		events:     list.New(),
		eventByID:  make(map[string]*domain.Event),
		maxTraces:  maxTraceHistory,
		traces:     make(map[string]*domain.Trace),
		traceOrder: list.New(),
		traceElem:  make(map[string]*list.Element),
	}
}

// RecordEvent appends ev to the event-history ring buffer, evicting
// the oldest entry once capacity is exceeded.
func (s *Store) RecordEvent(ev *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.PushFront(ev)
	s.eventByID[ev.Wrapper.ID] = ev
	if s.events.Len() > s.maxEvents {
		oldest := s.events.Back()
		if oldest != nil {
			old := oldest.Value.(*domain.Event)
			delete(s.eventByID, old.Wrapper.ID)
			s.events.Remove(oldest)
		}
	}
}

// PutTrace inserts or replaces a finalized trace, evicting the oldest
// trace by insertion order once capacity is exceeded.
func (s *Store) PutTrace(t *domain.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevStatus, existed := s.statusOf(t.EventID); existed {
		s.adjustStats(prevStatus, -1)
	}
	if elem, ok := s.traceElem[t.EventID]; ok {
		s.traceOrder.Remove(elem)
		delete(s.traceElem, t.EventID)
	}

	s.traces[t.EventID] = t
	elem := s.traceOrder.PushBack(t.EventID)
	s.traceElem[t.EventID] = elem
	s.adjustStats(t.Status, 1)

	for len(s.traces) > s.maxTraces {
		oldest := s.traceOrder.Front()
		if oldest == nil {
			break
		}
		oldestID := oldest.Value.(string)
		if old, ok := s.traces[oldestID]; ok {
			s.adjustStats(old.Status, -1)
		}
		delete(s.traces, oldestID)
		delete(s.traceElem, oldestID)
		s.traceOrder.Remove(oldest)
	}
}

func (s *Store) statusOf(eventID string) (domain.TraceStatus, bool) {
	t, ok := s.traces[eventID]
	if !ok {
		return "", false
	}
	return t.Status, true
}

func (s *Store) adjustStats(status domain.TraceStatus, delta int) {
	switch status {
	case domain.TraceDelivered:
		s.stats.Delivered += delta
	case domain.TraceDropped:
		s.stats.Dropped += delta
	case domain.TraceError:
		s.stats.Error += delta
	case domain.TracePending:
		s.stats.Pending += delta
	}
}

// GetTrace returns the trace for eventID.
func (s *Store) GetTrace(eventID string) (*domain.Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[eventID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// GetTracesForRun returns every trace sharing runID, oldest first.
func (s *Store) GetTracesForRun(runID string) []*domain.Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Trace
	for elem := s.traceOrder.Front(); elem != nil; elem = elem.Next() {
		id := elem.Value.(string)
		if t, ok := s.traces[id]; ok && t.RunID == runID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// GetRecentEvents returns up to limit of the most recently recorded
// events, newest first.
func (s *Store) GetRecentEvents(limit int) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Event
	for elem := s.events.Front(); elem != nil && len(out) < limit; elem = elem.Next() {
		out = append(out, elem.Value.(*domain.Event))
	}
	return out
}

// GetEventsForRun returns up to limit events sharing runID, newest first.
func (s *Store) GetEventsForRun(runID string, limit int) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Event
	for elem := s.events.Front(); elem != nil && len(out) < limit; elem = elem.Next() {
		ev := elem.Value.(*domain.Event)
		if ev.Wrapper.RunID == runID {
			out = append(out, ev)
		}
	}
	return out
}

// GetStats returns the current delivered/dropped/error/pending counts.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
