package router

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/softsdn/network-service/internal/domain"
)

// encodeEvent serializes the full event {payload, wrapper, hash} for
// HTTP delivery to endpoint-only nodes.
func encodeEvent(ev *domain.Event) (io.Reader, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
