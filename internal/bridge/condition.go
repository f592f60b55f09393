package bridge

import (
	"encoding/json"
	"strings"

	"github.com/atende-labs/atendai/internal/domain"
)

// EvaluateCondition evaluates an applicability condition against the
// runtime context. A nil condition is always applicable. Comparisons on
// mismatched types evaluate false rather than erroring: an inapplicable
// action is skipped, never a request failure.
func EvaluateCondition(cond *domain.Condition, runtimeCtx map[string]interface{}) bool {
	if cond == nil {
		return true
	}

	value, present := runtimeCtx[cond.Field]

	switch cond.Operator {
	case domain.OperatorExists:
		return present
	case domain.OperatorEq:
		return present && looseEqual(value, cond.Value)
	case domain.OperatorNeq:
		return present && !looseEqual(value, cond.Value)
	case domain.OperatorGt, domain.OperatorGte, domain.OperatorLt, domain.OperatorLte:
		left, leftOK := toFloat(value)
		right, rightOK := toFloat(cond.Value)
		if !present || !leftOK || !rightOK {
			return false
		}
		switch cond.Operator {
		case domain.OperatorGt:
			return left > right
		case domain.OperatorGte:
			return left >= right
		case domain.OperatorLt:
			return left < right
		default:
			return left <= right
		}
	case domain.OperatorContains:
		return present && contains(value, cond.Value)
	default:
		return false
	}
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(haystack, needle interface{}) bool {
	switch value := haystack.(type) {
	case string:
		needleStr, ok := needle.(string)
		return ok && strings.Contains(value, needleStr)
	case []interface{}:
		for _, element := range value {
			if looseEqual(element, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
