package policy

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/softsdn/network-service/internal/domain"
)

// ApplyTransform annotates ev.Payload.Data per the mapping defined by
// a transform action: each mapping entry is either a literal value,
// or, when prefixed with "=", a JS expression evaluated with goja
// against the event's payload and wrapper. A transform only writes
// into payload.data; it never rewrites the wrapper fields the
// Integrity Engine commits to.
func ApplyTransform(ev *domain.Event, mapping map[string]string) error {
	if len(mapping) == 0 {
		return nil
	}
	if ev.Payload.Data == nil {
		ev.Payload.Data = make(map[string]any)
	}
	for field, expr := range mapping {
		if !strings.HasPrefix(expr, "=") {
			ev.Payload.Data[field] = expr
			continue
		}
		val, err := evalExpression(strings.TrimPrefix(expr, "="), ev)
		if err != nil {
			return err
		}
		ev.Payload.Data[field] = val
	}
	return nil
}

func evalExpression(expr string, ev *domain.Event) (any, error) {
	vm := goja.New()
	_ = vm.Set("payload", map[string]any{
		"type": ev.Payload.Type,
		"data": ev.Payload.Data,
	})
	_ = vm.Set("wrapper", map[string]any{
		"source":   ev.Wrapper.Source,
		"target":   ev.Wrapper.Target,
		"runId":    ev.Wrapper.RunID,
		"boundary": string(ev.Wrapper.Boundary),
	})
	v, err := vm.RunString(expr)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}
