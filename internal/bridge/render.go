package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/atende-labs/atendai/internal/domain"
)

// Render substitutes the template's placeholders with values from the
// runtime context, preserving the skeleton's structure. A string node that
// is exactly one placeholder takes the context value's native type
// (numbers stay numbers); placeholders embedded in longer strings
// substitute textually. No expression evaluation happens here, which keeps
// rendering deterministic and injection-safe.
func Render(tpl *domain.ActionTemplate, runtimeCtx map[string]interface{}) ([]byte, error) {
	var payload interface{}
	if err := json.Unmarshal(tpl.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload skeleton: %w", err)
	}

	rendered := substitute(payload, runtimeCtx)

	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rendered payload: %w", err)
	}
	return out, nil
}

func substitute(node interface{}, runtimeCtx map[string]interface{}) interface{} {
	switch value := node.(type) {
	case string:
		return substituteString(value, runtimeCtx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for key, child := range value {
			out[key] = substitute(child, runtimeCtx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, child := range value {
			out[i] = substitute(child, runtimeCtx)
		}
		return out
	default:
		return node
	}
}

func substituteString(value string, runtimeCtx map[string]interface{}) interface{} {
	// Whole-string placeholders keep the context value's native type.
	if match := placeholderPattern.FindStringSubmatch(value); match != nil && match[0] == value {
		if replacement, ok := runtimeCtx[match[1]]; ok {
			return replacement
		}
		return value
	}

	return placeholderPattern.ReplaceAllStringFunc(value, func(marker string) string {
		name := placeholderPattern.FindStringSubmatch(marker)[1]
		replacement, ok := runtimeCtx[name]
		if !ok {
			return marker
		}
		return fmt.Sprintf("%v", replacement)
	})
}
