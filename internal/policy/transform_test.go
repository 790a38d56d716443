package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softsdn/network-service/internal/domain"
)

func TestApplyTransformLiteral(t *testing.T) {
	ev := &domain.Event{Payload: domain.Payload{Type: "chat.message", Data: map[string]any{}}}
	err := ApplyTransform(ev, map[string]string{"tag": "redacted"})
	require.NoError(t, err)
	assert.Equal(t, "redacted", ev.Payload.Data["tag"])
}

func TestApplyTransformExpression(t *testing.T) {
	ev := &domain.Event{
		Payload: domain.Payload{Type: "chat.message", Data: map[string]any{"text": "hello"}},
		Wrapper: domain.Wrapper{Source: "node-a", Boundary: domain.BoundaryInter},
	}
	err := ApplyTransform(ev, map[string]string{"upper": "=payload.data.text.toUpperCase()"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", ev.Payload.Data["upper"])
}

func TestApplyTransformExpressionSeesWrapper(t *testing.T) {
	ev := &domain.Event{
		Payload: domain.Payload{Type: "chat.message", Data: map[string]any{}},
		Wrapper: domain.Wrapper{Source: "node-a", Boundary: domain.BoundaryExtra},
	}
	err := ApplyTransform(ev, map[string]string{"sourceBoundary": "=wrapper.source + ':' + wrapper.boundary"})
	require.NoError(t, err)
	assert.Equal(t, "node-a:extra", ev.Payload.Data["sourceBoundary"])
}

func TestApplyTransformNeverTouchesCommittedFieldsDirectly(t *testing.T) {
	ev := &domain.Event{
		Payload: domain.Payload{Type: "chat.message", Data: map[string]any{}},
		Wrapper: domain.Wrapper{Source: "node-a", Target: "node-b", RunID: "run-1", Boundary: domain.BoundaryIntra},
	}
	before := ev.Wrapper
	err := ApplyTransform(ev, map[string]string{"note": "=wrapper.source"})
	require.NoError(t, err)
	assert.Equal(t, before, ev.Wrapper, "transform must not mutate wrapper fields")
}

func TestApplyTransformEmptyMappingNoop(t *testing.T) {
	ev := &domain.Event{Payload: domain.Payload{Type: "chat.message"}}
	err := ApplyTransform(ev, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.Payload.Data)
}

func TestApplyTransformInvalidExpressionErrors(t *testing.T) {
	ev := &domain.Event{Payload: domain.Payload{Type: "chat.message", Data: map[string]any{}}}
	err := ApplyTransform(ev, map[string]string{"bad": "=this is not valid js(("})
	assert.Error(t, err)
}
