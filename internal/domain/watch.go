package domain

import "time"

// WatchFilters is the set of optional match criteria for a watch
// subscription; an unset field is a wildcard.
type WatchFilters struct {
	RunID     string
	Source    string
	EventType string
}

// WatchSubscription is a SoftSDN observer's subscription to finalized
// traces matching its filters.
type WatchSubscription struct {
	ID        string
	Filters   WatchFilters
	SessionID string
	CreatedAt time.Time
}

// Matches reports whether a finalized trace satisfies every filter the
// subscription set.
func (w *WatchSubscription) Matches(runID, source, eventType string) bool {
	if w.Filters.RunID != "" && w.Filters.RunID != runID {
		return false
	}
	if w.Filters.Source != "" && w.Filters.Source != source {
		return false
	}
	if w.Filters.EventType != "" && w.Filters.EventType != eventType {
		return false
	}
	return true
}
