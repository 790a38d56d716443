package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
)

type recordingNotifier struct {
	calls []string
}

func (r *recordingNotifier) NotifyWatcher(sessionID string, ev *domain.Event, t *domain.Trace) {
	r.calls = append(r.calls, sessionID)
}

func TestWatchMatchesAndNotifies(t *testing.T) {
	w := NewWatchers()
	w.Watch("session-1", domain.WatchFilters{RunID: "run-a"})
	w.Watch("session-2", domain.WatchFilters{RunID: "run-b"})

	n := &recordingNotifier{}
	ev := &domain.Event{Payload: domain.Payload{Type: "chat.message"}, Wrapper: domain.Wrapper{RunID: "run-a", Source: "node-a"}}
	w.Notify(n, ev, &domain.Trace{EventID: "1"})

	assert.Equal(t, []string{"session-1"}, n.calls)
}

func TestUnwatchRequiresOwnership(t *testing.T) {
	w := NewWatchers()
	sub := w.Watch("session-1", domain.WatchFilters{})
	assert.False(t, w.Unwatch(sub.ID, "session-2"))
	assert.True(t, w.Unwatch(sub.ID, "session-1"))
}

func TestDropForSessionRemovesAllItsSubscriptions(t *testing.T) {
	w := NewWatchers()
	w.Watch("session-1", domain.WatchFilters{})
	w.Watch("session-1", domain.WatchFilters{EventType: "x"})
	w.Watch("session-2", domain.WatchFilters{})

	w.DropForSession("session-1")

	n := &recordingNotifier{}
	ev := &domain.Event{Payload: domain.Payload{Type: "x"}, Wrapper: domain.Wrapper{}}
	w.Notify(n, ev, &domain.Trace{})
	assert.Equal(t, []string{"session-2"}, n.calls)
}

func TestWildcardFiltersMatchEverything(t *testing.T) {
	w := NewWatchers()
	sub := w.Watch("session-1", domain.WatchFilters{})
	require.NotEmpty(t, sub.ID)

	ev := &domain.Event{Payload: domain.Payload{Type: "anything"}, Wrapper: domain.Wrapper{RunID: "r", Source: "s"}}
	n := &recordingNotifier{}
	w.Notify(n, ev, &domain.Trace{})
	assert.Equal(t, []string{"session-1"}, n.calls)
}
