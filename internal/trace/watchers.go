package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softsdn/network-service/internal/domain"
)

// Notifier delivers a finalized (event, trace) pair to a session,
// implemented by the Fabric Front-End.
type Notifier interface {
	NotifyWatcher(sessionID string, ev *domain.Event, t *domain.Trace)
}

// Watchers holds the RW-locked watch-subscription registry.
type Watchers struct {
	mu   sync.RWMutex
	subs map[string]*domain.WatchSubscription
}

// NewWatchers constructs an empty watcher registry.
func NewWatchers() *Watchers {
	return &Watchers{subs: make(map[string]*domain.WatchSubscription)}
}

// Watch creates a new subscription owned by sessionID.
func (w *Watchers) Watch(sessionID string, filters domain.WatchFilters) *domain.WatchSubscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub := &domain.WatchSubscription{
		ID:        uuid.NewString(),
		Filters:   filters,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
	w.subs[sub.ID] = sub
	return sub
}

// Unwatch removes a subscription if it is owned by sessionID.
func (w *Watchers) Unwatch(id, sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.subs[id]
	if !ok || sub.SessionID != sessionID {
		return false
	}
	delete(w.subs, id)
	return true
}

// DropForSession removes every subscription owned by sessionID, on
// session close.
func (w *Watchers) DropForSession(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, sub := range w.subs {
		if sub.SessionID == sessionID {
			delete(w.subs, id)
		}
	}
}

// Notify delivers the finalized trace to every matching watcher via
// notifier.
func (w *Watchers) Notify(notifier Notifier, ev *domain.Event, t *domain.Trace) {
	w.mu.RLock()
	matched := make([]*domain.WatchSubscription, 0)
	for _, sub := range w.subs {
		if sub.Matches(ev.Wrapper.RunID, ev.Wrapper.Source, ev.Payload.Type) {
			matched = append(matched, sub)
		}
	}
	w.mu.RUnlock()

	for _, sub := range matched {
		notifier.NotifyWatcher(sub.SessionID, ev, t)
	}
}
