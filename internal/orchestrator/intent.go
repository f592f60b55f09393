package orchestrator

import (
	"context"
	"strings"
)

// Intent is the classification outcome for one inbound message. Collections
// names the knowledge collections worth consulting for the intent;
// Actionable marks intents that may end in an operational-backend call.
type Intent struct {
	Name        string   `json:"name"`
	Collections []string `json:"collections"`
	Actionable  bool     `json:"actionable"`
}

// IntentClassifier maps a customer message to an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (*Intent, error)
}

// IntentRule binds a set of trigger keywords to an intent. Keywords are
// matched accent-insensitively against the lowercased message.
type IntentRule struct {
	Intent      string
	Keywords    []string
	Collections []string
	Actionable  bool
}

// RuleClassifier is a deterministic keyword classifier. Rules are evaluated
// in order and the first match wins; unmatched messages fall through to a
// general intent that consults every collection.
type RuleClassifier struct {
	rules  []IntentRule
	folder *strings.Replacer
}

// DefaultIntentRules covers the common Brazilian e-commerce support flows.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{
			Intent:      "shipping",
			Keywords:    []string{"frete", "entrega", "envio", "prazo", "chegou", "shipping", "delivery"},
			Collections: []string{"policies", "faq"},
		},
		{
			Intent:      "order-status",
			Keywords:    []string{"pedido", "rastreio", "rastreamento", "status", "order", "tracking"},
			Collections: []string{"faq"},
			Actionable:  true,
		},
		{
			Intent:      "returns",
			Keywords:    []string{"troca", "trocar", "devolucao", "devolver", "reembolso", "return", "refund"},
			Collections: []string{"policies"},
			Actionable:  true,
		},
		{
			Intent:      "product",
			Keywords:    []string{"produto", "estoque", "preco", "tamanho", "cor", "product", "price", "stock"},
			Collections: []string{"catalog", "faq"},
		},
	}
}

// NewRuleClassifier creates a classifier over the given rules. A nil or
// empty rule set falls back to DefaultIntentRules.
func NewRuleClassifier(rules []IntentRule) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultIntentRules()
	}
	return &RuleClassifier{
		rules: rules,
		folder: strings.NewReplacer(
			"á", "a", "à", "a", "â", "a", "ã", "a",
			"é", "e", "ê", "e",
			"í", "i",
			"ó", "o", "ô", "o", "õ", "o",
			"ú", "u", "ü", "u",
			"ç", "c",
		),
	}
}

// Classify matches the message against the rule set. It never errors; the
// error return exists for classifier implementations that call out.
func (c *RuleClassifier) Classify(_ context.Context, text string) (*Intent, error) {
	normalized := c.folder.Replace(strings.ToLower(text))
	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(normalized, keyword) {
				return &Intent{
					Name:        rule.Intent,
					Collections: rule.Collections,
					Actionable:  rule.Actionable,
				}, nil
			}
		}
	}
	return &Intent{Name: "general", Collections: nil, Actionable: false}, nil
}
