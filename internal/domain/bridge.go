package domain

// BridgeType is the closed set of external connector kinds.
type BridgeType string

const (
	BridgeWebhook   BridgeType = "webhook"
	BridgeWebsocket BridgeType = "websocket"
	BridgeGRPC      BridgeType = "grpc"
	BridgeCustom    BridgeType = "custom"
)

// Bridge is a registered external connector, discoverable by event
// type for outbound routing. Bridges are not required by the
// core routing paths.
type Bridge struct {
	ID              string
	Name            string
	Type            BridgeType
	Endpoint        string
	SupportedEvents []string
	Active          bool
}

// SupportsEventType reports whether the bridge declares support for
// the given event type, using the same pattern rules as contracts.
func (b *Bridge) SupportsEventType(eventType string) bool {
	for _, pattern := range b.SupportedEvents {
		if MatchEventTypePattern(pattern, eventType) {
			return true
		}
	}
	return false
}
