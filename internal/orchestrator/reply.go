package orchestrator

import (
	"fmt"
	"strings"
)

// Reply is the aggregated response for one inbound message. Degraded marks
// replies assembled while at least one specialist fell back.
type Reply struct {
	ConversationID string   `json:"conversation_id"`
	Intent         string   `json:"intent"`
	Text           string   `json:"text"`
	Sources        []string `json:"sources,omitempty"`
	ActionID       string   `json:"action_id,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// composeReply assembles the customer-facing reply from the terminal node
// results. It only reads resolved values; errors were already absorbed at
// the node boundary.
func composeReply(rc *RequestContext, deps map[string]NodeResult) *Reply {
	intent := intentFrom(deps)
	items := retrievedItems(deps)

	var outcome *ActionOutcome
	if r, ok := deps[nodeAction]; ok {
		outcome, _ = r.Value.(*ActionOutcome)
	}

	degraded := false
	for _, r := range deps {
		if r.State == StateFailed || r.State == StateTimedOut {
			degraded = true
			break
		}
	}

	var parts []string
	if greeting := rc.Config.Style.Greeting; greeting != "" {
		parts = append(parts, greeting)
	}

	var sources []string
	switch {
	case outcome != nil && len(outcome.Missing) > 0:
		parts = append(parts, fmt.Sprintf("Para continuar, preciso da seguinte informação: %s.", strings.Join(outcome.Missing, ", ")))
	case outcome != nil && outcome.Result != nil:
		parts = append(parts, "Consultei isso para você no nosso sistema.")
	}

	if len(items) > 0 {
		parts = append(parts, items[0].Content)
		for _, item := range items {
			sources = append(sources, item.ID)
		}
	} else if outcome == nil || outcome.Result == nil {
		if degraded {
			parts = append(parts, "No momento não consegui consultar todas as informações. Pode tentar novamente em instantes?")
		} else {
			parts = append(parts, "Não encontrei uma resposta exata para isso, mas nossa equipe pode ajudar.")
		}
	}

	parts = append(parts, closingFor(rc.Config.Style.Tone))

	reply := &Reply{
		ConversationID: rc.ConversationID,
		Intent:         intent.Name,
		Text:           strings.Join(parts, " "),
		Sources:        sources,
		Degraded:       degraded,
	}
	if outcome != nil && outcome.Result != nil {
		reply.ActionID = outcome.Result.ActionID
	}
	return reply
}

// degradedReply is the aggregation fallback: tenant greeting plus a retry
// suggestion, with no specialist content.
func degradedReply(rc *RequestContext) *Reply {
	var parts []string
	if greeting := rc.Config.Style.Greeting; greeting != "" {
		parts = append(parts, greeting)
	}
	parts = append(parts, "No momento não consegui consultar todas as informações. Pode tentar novamente em instantes?")
	parts = append(parts, closingFor(rc.Config.Style.Tone))
	return &Reply{
		ConversationID: rc.ConversationID,
		Intent:         "general",
		Text:           strings.Join(parts, " "),
		Degraded:       true,
	}
}

func closingFor(tone string) string {
	if tone == "formal" {
		return "Permanecemos à disposição."
	}
	return "Qualquer coisa, é só chamar!"
}
