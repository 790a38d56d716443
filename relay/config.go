// Package relay is the participant-side client library for the
// Network Service: connect, register, heartbeat, send,
// subscribe, watch, and the turn-taking claim/defer protocol helpers.
// Grounded in spirit on this codebase's sdk/go/client Config/Client
// shape, adapted to a persistent websocket connection.
package relay

import "time"

// Config controls how the Relay Client connects and registers.
type Config struct {
	ServerURL         string
	AuthToken         string
	NetworkSecret     string
	NodeID            string
	Name              string
	Type              string
	Capabilities      []string
	Endpoint          string
	HeartbeatInterval time.Duration

	// ReconnectMinDelay/MaxDelay/MaxTries implement the bounded
	// exponential reconnect backoff (default 1s/5s/10).
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectMaxTries int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectMinDelay <= 0 {
		c.ReconnectMinDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 5 * time.Second
	}
	if c.ReconnectMaxTries <= 0 {
		c.ReconnectMaxTries = 10
	}
	return c
}
