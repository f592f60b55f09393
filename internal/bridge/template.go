// Package bridge turns a knowledge item's action template plus a runtime
// context into a safely parameterized call against the operational
// backend. Rendering is pure and instant; only execution touches the
// network.
package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/atende-labs/atendai/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// ValidateTemplate checks an action template's declared-variable invariant:
// every placeholder in the payload skeleton appears in the declared
// variable list, and vice versa. Templates failing this are rejected
// before they are ever executed.
func ValidateTemplate(tpl *domain.ActionTemplate) error {
	if err := domain.ValidateActionTemplate(tpl); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid action template", err)
	}

	var payload interface{}
	if err := json.Unmarshal(tpl.Payload, &payload); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "action template payload is not valid JSON", err)
	}

	found := make(map[string]bool)
	collectPlaceholders(payload, found)

	declared := make(map[string]bool, len(tpl.RequiredVariables))
	for _, name := range tpl.RequiredVariables {
		declared[name] = true
	}

	var undeclared, unused []string
	for name := range found {
		if !declared[name] {
			undeclared = append(undeclared, name)
		}
	}
	for name := range declared {
		if !found[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(undeclared)
	sort.Strings(unused)

	if len(undeclared) > 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid action template",
			fmt.Errorf("payload placeholders not declared as variables: %v", undeclared))
	}
	if len(unused) > 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid action template",
			fmt.Errorf("declared variables missing from payload: %v", unused))
	}

	return nil
}

// MissingVariables returns the declared variables absent from the runtime
// context, in declaration order.
func MissingVariables(tpl *domain.ActionTemplate, runtimeCtx map[string]interface{}) []string {
	var missing []string
	for _, name := range tpl.RequiredVariables {
		if _, ok := runtimeCtx[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func collectPlaceholders(node interface{}, found map[string]bool) {
	switch value := node.(type) {
	case string:
		for _, match := range placeholderPattern.FindAllStringSubmatch(value, -1) {
			found[match[1]] = true
		}
	case map[string]interface{}:
		for _, child := range value {
			collectPlaceholders(child, found)
		}
	case []interface{}:
		for _, child := range value {
			collectPlaceholders(child, found)
		}
	}
}
