package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/softsdn/network-service/internal/domain"
	"github.com/softsdn/network-service/internal/fabric"
	"github.com/softsdn/network-service/internal/integrity"
)

// Handler is a process-local event handler, dispatched on
// event:received.
type Handler func(ev *domain.Event)

// SendOptions are the optional fields accepted by Send.
type SendOptions struct {
	Target   string
	CausedBy string
	Boundary domain.Boundary
}

// SendResult is returned by Send.
type SendResult struct {
	EventID string
	Trace   *domain.Trace
}

// watchEntry pairs a subscription's original filter with the
// process-local handler, so a reconnect can resume the subscription
// instead of re-subscribing with a broadened, empty filter.
type watchEntry struct {
	filter  domain.WatchFilters
	handler Handler
}

// Client is a connected participant in the fabric.
type Client struct {
	cfg       Config
	integrity *integrity.Engine

	mu         sync.Mutex
	conn       *websocket.Conn
	ready      bool
	reconnects int

	handlersMu sync.RWMutex
	handlers   map[string][]Handler // event type -> handlers; "*" is the wildcard entry

	watchMu sync.RWMutex
	watches map[string]watchEntry // subscription id -> filter+handler

	pendingMu sync.Mutex
	pending   map[string]chan fabric.Response

	claims *claimAggregator

	stopHeartbeat chan struct{}
	closeOnce     sync.Once
	closed        chan struct{}
}

// New constructs a Client; call Connect to open the session.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:       cfg,
		integrity: integrity.New(cfg.NetworkSecret),
		handlers:  make(map[string][]Handler),
		watches:   make(map[string]watchEntry),
		pending:   make(map[string]chan fabric.Response),
		claims:    newClaimAggregator(),
		closed:    make(chan struct{}),
	}
}

// Connect opens a session, performs the auth handshake via the
// configured token, issues node:register, and starts the heartbeat
// loop and reconnect supervisor.
func (c *Client) Connect() error {
	if err := c.dial(); err != nil {
		return err
	}
	if _, err := c.register(); err != nil {
		return err
	}
	c.stopHeartbeat = make(chan struct{})
	go c.heartbeatLoop()
	return nil
}

func (c *Client) dial() error {
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.ServerURL, header)
	if err != nil {
		return fmt.Errorf("relay: dial failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
	return nil
}

func (c *Client) register() (*domain.Node, error) {
	payload, _ := json.Marshal(map[string]any{
		"id":           c.cfg.NodeID,
		"name":         c.cfg.Name,
		"type":         c.cfg.Type,
		"capabilities": c.cfg.Capabilities,
		"endpoint":     c.cfg.Endpoint,
	})
	resp, err := c.request("node:register", payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	var n domain.Node
	b, _ := json.Marshal(resp.Payload)
	_ = json.Unmarshal(b, &n)
	if n.ID != "" {
		c.cfg.NodeID = n.ID
	}
	return &n, nil
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopHeartbeat:
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]string{"id": c.cfg.NodeID})
			_, _ = c.request("node:heartbeat", payload)
		}
	}
}

// Send emits an event and returns its resulting trace.
func (c *Client) Send(payload domain.Payload, runID string, opts SendOptions) (SendResult, error) {
	boundary := opts.Boundary
	if boundary == "" {
		boundary = domain.BoundaryIntra
	}
	body, _ := json.Marshal(map[string]any{
		"payload":  payload,
		"runId":    runID,
		"target":   opts.Target,
		"causedBy": opts.CausedBy,
		"boundary": boundary,
	})
	resp, err := c.request("event:send", body)
	if err != nil {
		return SendResult{}, err
	}
	if !resp.OK {
		return SendResult{}, errors.New(resp.Error)
	}
	var out struct {
		EventID string       `json:"eventId"`
		Trace   *domain.Trace `json:"trace"`
	}
	b, _ := json.Marshal(resp.Payload)
	_ = json.Unmarshal(b, &out)
	return SendResult{EventID: out.EventID, Trace: out.Trace}, nil
}

// On subscribes a process-local handler to an event type; "*" matches
// every type. Returns an unsubscribe function. Handler panics are isolated: logged,
// never cascaded.
func (c *Client) On(eventType string, handler Handler) func() {
	c.handlersMu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
	idx := len(c.handlers[eventType]) - 1
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		hs := c.handlers[eventType]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

func (c *Client) dispatch(ev *domain.Event) {
	c.handlersMu.RLock()
	specific := append([]Handler(nil), c.handlers[ev.Payload.Type]...)
	wildcard := append([]Handler(nil), c.handlers["*"]...)
	c.handlersMu.RUnlock()

	for _, h := range append(specific, wildcard...) {
		if h == nil {
			continue
		}
		c.safeInvoke(h, ev)
	}
}

func (c *Client) safeInvoke(h Handler, ev *domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("relay: handler panic isolated: %v", r)
		}
	}()
	h(ev)
}

// CreateContract authorizes this node to send the given event types
// to toNodeId under the given boundaries.
func (c *Client) CreateContract(toNodeID string, allowedEventTypes []string, boundaries []domain.Boundary, expiresAt *time.Time) (*domain.Contract, error) {
	body, _ := json.Marshal(map[string]any{
		"to":                toNodeID,
		"allowedEventTypes": allowedEventTypes,
		"boundaries":        boundaries,
		"expiresAt":         expiresAt,
	})
	resp, err := c.request("contract:create", body)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	var contract domain.Contract
	b, _ := json.Marshal(resp.Payload)
	_ = json.Unmarshal(b, &contract)
	return &contract, nil
}

// Watch subscribes to SDN trace fan-out matching filter, dispatching
// to handler.
func (c *Client) Watch(filter domain.WatchFilters, handler Handler) (string, error) {
	body, _ := json.Marshal(filter)
	resp, err := c.request("sdn:watch", body)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", errors.New(resp.Error)
	}
	var sub domain.WatchSubscription
	b, _ := json.Marshal(resp.Payload)
	_ = json.Unmarshal(b, &sub)

	c.watchMu.Lock()
	c.watches[sub.ID] = watchEntry{filter: filter, handler: handler}
	c.watchMu.Unlock()
	return sub.ID, nil
}

// Unwatch removes a previously created watch subscription.
func (c *Client) Unwatch(subscriptionID string) error {
	body, _ := json.Marshal(map[string]string{"id": subscriptionID})
	resp, err := c.request("sdn:unwatch", body)
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	c.watchMu.Lock()
	delete(c.watches, subscriptionID)
	c.watchMu.Unlock()
	return nil
}

// GetTopology returns the server's current topology snapshot.
func (c *Client) GetTopology() (map[string]any, error) {
	resp, err := c.request("sdn:topology", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	out, _ := resp.Payload.(map[string]any)
	return out, nil
}

// Disconnect issues a best-effort node:unregister then closes the
// connection. Closing c.closed first keeps the read loop's disconnect
// path from treating this as a dropped connection and reconnecting.
func (c *Client) Disconnect() error {
	_, _ = c.request("node:unregister", nil)
	c.closeOnce.Do(func() { close(c.closed) })
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) request(verb string, payload json.RawMessage) (fabric.Response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fabric.Response{}, errors.New("relay: not connected")
	}

	id := uuid.NewString()
	ch := make(chan fabric.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := fabric.Request{ID: id, Verb: verb, Payload: payload}
	if err := conn.WriteJSON(req); err != nil {
		return fabric.Response{}, fmt.Errorf("relay: write failed: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(10 * time.Second):
		return fabric.Response{}, errors.New("relay: request timed out")
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var push fabric.Push
		if err := conn.ReadJSON(&push); err != nil {
			c.handleDisconnect()
			return
		}
		c.handlePush(push)
	}
}

func (c *Client) handlePush(push fabric.Push) {
	switch push.Verb {
	case "response":
		b, _ := json.Marshal(push.Payload)
		var resp fabric.Response
		_ = json.Unmarshal(b, &resp)
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	case "event:received":
		b, _ := json.Marshal(push.Payload)
		var ev domain.Event
		_ = json.Unmarshal(b, &ev)
		c.dispatch(&ev)
		c.observeClaimEvent(&ev)
	case "sdn:event":
		b, _ := json.Marshal(push.Payload)
		var out struct {
			Event *domain.Event `json:"event"`
			Trace *domain.Trace `json:"trace"`
		}
		_ = json.Unmarshal(b, &out)
		c.dispatchWatchers(out.Event)
	case "network:node:joined", "network:node:left", "network:node:disconnected":
		// topology fan-out; Relay Client exposes these only through
		// GetTopology polling in this version (no dedicated handler hook).
	}
}

func (c *Client) dispatchWatchers(ev *domain.Event) {
	if ev == nil {
		return
	}
	c.watchMu.RLock()
	handlers := make([]Handler, 0, len(c.watches))
	for _, entry := range c.watches {
		sub := domain.WatchSubscription{Filters: entry.filter}
		if sub.Matches(ev.Wrapper.RunID, ev.Wrapper.Source, ev.Payload.Type) {
			handlers = append(handlers, entry.handler)
		}
	}
	c.watchMu.RUnlock()
	for _, h := range handlers {
		c.safeInvoke(h, ev)
	}
}

// handleDisconnect runs the bounded exponential backoff reconnect
// supervisor (initial 1s, max 5s, at most 10 attempts); on success it
// re-registers and resumes watches.
func (c *Client) handleDisconnect() {
	select {
	case <-c.closed:
		return
	default:
	}

	delay := c.cfg.ReconnectMinDelay
	for attempt := 1; attempt <= c.cfg.ReconnectMaxTries; attempt++ {
		time.Sleep(delay)
		if err := c.dial(); err == nil {
			if _, err := c.register(); err == nil {
				c.resumeWatches()
				return
			}
		}
		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
	log.Printf("relay: reconnect abandoned after %d attempts", c.cfg.ReconnectMaxTries)
}

// resumeWatches re-subscribes every live watch with its original
// filter after a reconnect. Re-subscribing
// with an empty filter would silently broaden every watch to match all
// events, so the filter recorded at Watch time is replayed verbatim.
func (c *Client) resumeWatches() {
	c.watchMu.RLock()
	entries := make(map[string]watchEntry, len(c.watches))
	for id, entry := range c.watches {
		entries[id] = entry
	}
	c.watchMu.RUnlock()

	for id, entry := range entries {
		body, _ := json.Marshal(entry.filter)
		resp, err := c.request("sdn:watch", body)
		if err != nil || !resp.OK {
			continue
		}
		var sub domain.WatchSubscription
		b, _ := json.Marshal(resp.Payload)
		_ = json.Unmarshal(b, &sub)

		c.watchMu.Lock()
		if cur, ok := c.watches[id]; ok {
			c.watches[sub.ID] = cur
			delete(c.watches, id)
		}
		c.watchMu.Unlock()
	}
}
