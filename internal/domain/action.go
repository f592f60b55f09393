package domain

import (
	"encoding/json"
	"fmt"
)

// ConditionOperator enumerates the comparison operators an applicability
// condition may use.
type ConditionOperator string

const (
	OperatorEq       ConditionOperator = "eq"
	OperatorNeq      ConditionOperator = "neq"
	OperatorGt       ConditionOperator = "gt"
	OperatorGte      ConditionOperator = "gte"
	OperatorLt       ConditionOperator = "lt"
	OperatorLte      ConditionOperator = "lte"
	OperatorContains ConditionOperator = "contains"
	OperatorExists   ConditionOperator = "exists"
)

// Condition is an applicability gate evaluated against the runtime context
// before an action template is executed.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    interface{}       `json:"value,omitempty"`
}

// ActionTemplate is the operational bridge payload a KnowledgeItem may
// carry. The payload skeleton holds {{placeholder}} markers for each
// declared variable; the bridge substitutes them structurally at render
// time.
type ActionTemplate struct {
	ActionID          string          `json:"action_id"`
	Endpoint          string          `json:"endpoint"`
	Method            string          `json:"method"`
	RequiredVariables []string        `json:"required_variables"`
	Payload           json.RawMessage `json:"payload"`
	Condition         *Condition      `json:"condition,omitempty"`
}

// ValidateActionTemplate checks the basic shape of a template. The
// placeholder/declared-variable cross-check needs the decoded payload tree
// and lives in the bridge package.
func ValidateActionTemplate(t *ActionTemplate) error {
	if t == nil {
		return fmt.Errorf("action template cannot be nil")
	}

	if t.ActionID == "" {
		return fmt.Errorf("action template ActionID is required")
	}

	if t.Endpoint == "" {
		return fmt.Errorf("action template Endpoint is required")
	}

	if !isValidMethod(t.Method) {
		return fmt.Errorf("action template Method is invalid: %s", t.Method)
	}

	if len(t.Payload) == 0 {
		return fmt.Errorf("action template Payload is required")
	}

	seen := make(map[string]bool, len(t.RequiredVariables))
	for _, name := range t.RequiredVariables {
		if name == "" {
			return fmt.Errorf("action template RequiredVariables cannot contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("action template RequiredVariables contains duplicate: %s", name)
		}
		seen[name] = true
	}

	if t.Condition != nil {
		if err := validateCondition(t.Condition); err != nil {
			return err
		}
	}

	return nil
}

func validateCondition(c *Condition) error {
	if c.Field == "" {
		return fmt.Errorf("condition Field is required")
	}
	if !isValidOperator(c.Operator) {
		return fmt.Errorf("condition Operator is invalid: %s", c.Operator)
	}
	if c.Operator != OperatorExists && c.Value == nil {
		return fmt.Errorf("condition Value is required for operator %s", c.Operator)
	}
	return nil
}

func isValidMethod(m string) bool {
	switch m {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func isValidOperator(op ConditionOperator) bool {
	switch op {
	case OperatorEq, OperatorNeq, OperatorGt, OperatorGte,
		OperatorLt, OperatorLte, OperatorContains, OperatorExists:
		return true
	}
	return false
}
