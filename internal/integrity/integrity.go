// Package integrity implements the keyed-hash commitment scheme over an
// event's committed fields. It is a pure function over its
// inputs and holds no state beyond the process-wide network secret,
// grounded on the HKDF/SHA3 derivation applications/auth/manager.go
// uses for wallet-challenge nonces.
package integrity

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/softsdn/network-service/internal/domain"
)

// Engine computes and verifies event hashes keyed with a shared secret.
type Engine struct {
	secret []byte
}

// New constructs an Engine bound to the given network secret.
func New(secret string) *Engine {
	return &Engine{secret: []byte(secret)}
}

// Secret returns the network secret this Engine is keyed with, for
// collaborators (e.g. pre-shared-key service-token validation) that
// must authenticate against the same shared secret.
func (e *Engine) Secret() []byte {
	return e.secret
}

// Compute returns the hex-encoded keyed hash over the event's committed
// fields. path is excluded because it mutates during routing.
func (e *Engine) Compute(fields domain.CommittedFields) string {
	canonical := canonicalize(fields)
	h := hkdf.New(sha3.New256, e.secret, nil, []byte(canonical))
	buf := make([]byte, 32)
	_, _ = h.Read(buf)
	return hex.EncodeToString(buf)
}

// Verify recomputes the hash over ev's committed fields and compares it
// to ev.Hash in constant time.
func (e *Engine) Verify(ev *domain.Event) bool {
	want := e.Compute(ev.Committed())
	got := strings.ToLower(ev.Hash)
	if len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Seal computes and assigns the hash on ev, for callers constructing a
// new event (the fabric's event:send verb and the HTTP submit endpoint).
func (e *Engine) Seal(ev *domain.Event) {
	ev.Hash = e.Compute(ev.Committed())
}

// canonicalize produces a byte-stable serialization of the committed
// fields: sorted map keys, deterministic ordering of scalar fields, so
// that any reimplementation of this scheme interoperates.
func canonicalize(f domain.CommittedFields) string {
	var b strings.Builder
	b.WriteString("type=")
	b.WriteString(f.Type)
	b.WriteString("\x00source=")
	b.WriteString(f.Source)
	b.WriteString("\x00runId=")
	b.WriteString(f.RunID)
	b.WriteString("\x00boundary=")
	b.WriteString(string(f.Boundary))
	b.WriteString("\x00target=")
	b.WriteString(f.Target)
	b.WriteString("\x00data=")
	b.WriteString(canonicalizeData(f.Data))
	return b.String()
}

// canonicalizeData renders an opaque payload.data map deterministically
// by sorting keys and recursing into nested maps/slices.
func canonicalizeData(data map[string]any) string {
	if data == nil {
		return "null"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%q:", k))
		b.WriteString(canonicalizeValue(data[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func canonicalizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any:
		return canonicalizeData(t)
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalizeValue(item))
		}
		b.WriteByte(']')
		return b.String()
	case float64:
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
