package domain

import "time"

// Payload is the opaque application-level content of an event.
type Payload struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Wrapper carries the transport metadata of an event.
type Wrapper struct {
	ID             string    `json:"id"`
	RunID          string    `json:"runId"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	Target         string    `json:"target,omitempty"`
	CausedBy       string    `json:"causedBy,omitempty"`
	Path           []string  `json:"path"`
	Boundary       Boundary  `json:"boundary"`
	SourceEntityID string    `json:"sourceEntityId,omitempty"`
	TargetEntityID string    `json:"targetEntityId,omitempty"`
}

// Event is the unit of transport: payload + wrapper + integrity hash.
type Event struct {
	Payload Payload `json:"payload"`
	Wrapper Wrapper `json:"wrapper"`
	Hash    string  `json:"hash"`
}

// CommittedFields is the exact field set the Integrity Engine hashes;
// path is deliberately excluded because it mutates during routing.
type CommittedFields struct {
	Type     string
	Data     map[string]any
	Source   string
	RunID    string
	Boundary Boundary
	Target   string
}

// Committed extracts the hash-committed fields from the event.
func (e *Event) Committed() CommittedFields {
	return CommittedFields{
		Type:     e.Payload.Type,
		Data:     e.Payload.Data,
		Source:   e.Wrapper.Source,
		RunID:    e.Wrapper.RunID,
		Boundary: e.Wrapper.Boundary,
		Target:   e.Wrapper.Target,
	}
}
