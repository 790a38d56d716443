// Package fabric implements the Fabric Front-End:
// persistent bidirectional sessions over gorilla/websocket, verb
// dispatch, and the outbound push surface (event:received, sdn:event,
// network:node:*).
package fabric

import "encoding/json"

// Request is the inbound envelope carried by every verb call.
type Request struct {
	ID      string          `json:"id"`
	Verb    string          `json:"verb"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the outbound reply envelope.
type Response struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Push is an unsolicited outbound message (event:received, sdn:event,
// network:node:joined/left/disconnected).
type Push struct {
	Verb    string `json:"verb"`
	Payload any    `json:"payload"`
}

func okResponse(id string, payload any) Response {
	return Response{ID: id, OK: true, Payload: payload}
}

func errResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Error: err.Error()}
}
