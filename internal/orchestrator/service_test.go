package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/atende-labs/atendai/internal/bridge"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigs struct {
	config *domain.TenantConfig
	err    error
}

func (f *fakeConfigs) Resolve(context.Context, string) (*domain.TenantConfig, error) {
	return f.config, f.err
}

type fakeSearcher struct {
	mu       sync.Mutex
	searched []string
	items    map[string][]*domain.KnowledgeItem
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, _, collection, _ string, _ retrieval.Filters, _ int) ([]*domain.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, collection)
	if f.err != nil {
		return nil, f.err
	}
	return f.items[collection], nil
}

func (f *fakeSearcher) searchedCollections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

type fakeActionExecutor struct {
	mu     sync.Mutex
	calls  int
	result *bridge.ActionResult
	err    error
}

func (f *fakeActionExecutor) Execute(context.Context, *domain.ActionTemplate, map[string]interface{}, string) (*bridge.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeActionExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTurnStore struct {
	mu    sync.Mutex
	turns []*domain.ConversationTurn
	err   error
}

func (f *fakeTurnStore) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return f.err
}

func (f *fakeTurnStore) recorded() []*domain.ConversationTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.ConversationTurn(nil), f.turns...)
}

func serviceConfig() *domain.TenantConfig {
	return &domain.TenantConfig{
		TenantID:    "t1",
		Domain:      "loja.example.com",
		Collections: []string{"policies", "faq", "catalog"},
		BackendRef:  "https://erp.example.com",
		Style: domain.CommunicationStyle{
			Tone:     "informal",
			Greeting: "Oi!",
		},
		Version: 1,
	}
}

func newTestService(configs ConfigResolver, searcher Searcher, executor ActionExecutor, turns ConversationStore) *Service {
	logger := log.New(io.Discard, "", 0)
	builder := NewBuilder(NewRuleClassifier(nil), searcher, executor, BuilderConfig{})
	return NewService(configs, builder, NewScheduler(logger), turns, logger, ServiceConfig{})
}

func TestServiceAnswersShippingQuestion(t *testing.T) {
	searcher := &fakeSearcher{items: map[string][]*domain.KnowledgeItem{
		"policies": {{ID: "R1", TenantID: "t1", Collection: "policies", Content: "Frete grátis para compras acima de R$ 199.", Score: 0.58}},
	}}
	executor := &fakeActionExecutor{}
	turns := &fakeTurnStore{}
	svc := newTestService(&fakeConfigs{config: serviceConfig()}, searcher, executor, turns)

	reply, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{
		TenantID:       "t1",
		ConversationID: "c1",
		Text:           "vocês têm frete grátis?",
	})
	require.NoError(t, err)

	assert.Equal(t, "shipping", reply.Intent)
	assert.Contains(t, reply.Text, "Oi!")
	assert.Contains(t, reply.Text, "Frete grátis para compras acima de R$ 199.")
	assert.Equal(t, []string{"R1"}, reply.Sources)
	assert.False(t, reply.Degraded)

	// shipping consults policies and faq, never catalog
	assert.ElementsMatch(t, []string{"policies", "faq"}, searcher.searchedCollections())
	assert.Equal(t, 0, executor.callCount(), "non-actionable intents never reach the backend")

	recorded := turns.recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, domain.TurnRoleCustomer, recorded[0].Role)
	assert.Equal(t, "vocês têm frete grátis?", recorded[0].Content)
	assert.Equal(t, domain.TurnRoleAssistant, recorded[1].Role)
	assert.Equal(t, reply.Text, recorded[1].Content)
}

func TestServiceConfigUnavailableApology(t *testing.T) {
	searcher := &fakeSearcher{}
	turns := &fakeTurnStore{}
	svc := newTestService(&fakeConfigs{err: domain.ErrConfigUnavailable}, searcher, &fakeActionExecutor{}, turns)

	reply, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{
		TenantID:       "t1",
		ConversationID: "c1",
		Text:           "cadê meu pedido?",
	})
	require.NoError(t, err, "a reply is always produced")

	assert.Equal(t, apologyText, reply.Text)
	assert.True(t, reply.Degraded)
	assert.NotContains(t, reply.Text, "Oi!", "apology carries no tenant content")
	assert.Empty(t, searcher.searchedCollections())
	assert.Empty(t, turns.recorded(), "no history write without tenant context")
}

func TestServiceActionMissingVariables(t *testing.T) {
	action := &domain.ActionTemplate{
		ActionID:          "lookup-order",
		Endpoint:          "/orders/status",
		Method:            "POST",
		RequiredVariables: []string{"customerId"},
		Payload:           []byte(`{"customer_id": "{{customerId}}"}`),
	}
	searcher := &fakeSearcher{items: map[string][]*domain.KnowledgeItem{
		"faq": {{ID: "K1", TenantID: "t1", Collection: "faq", Content: "Acompanhe seu pedido pelo nosso rastreio.", Score: 0.7, Action: action}},
	}}
	executor := &fakeActionExecutor{err: domain.NewMissingVariablesError([]string{"customerId"})}
	svc := newTestService(&fakeConfigs{config: serviceConfig()}, searcher, executor, &fakeTurnStore{})

	reply, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{
		TenantID:       "t1",
		ConversationID: "c1",
		Text:           "qual o status do meu pedido?",
	})
	require.NoError(t, err)

	assert.Equal(t, "order-status", reply.Intent)
	assert.Equal(t, 1, executor.callCount())
	assert.Contains(t, reply.Text, "customerId", "reply asks for the absent variable")
	assert.Empty(t, reply.ActionID)
	assert.False(t, reply.Degraded, "missing variables is a clean outcome, not a degradation")
}

func TestServiceActionSuccess(t *testing.T) {
	action := &domain.ActionTemplate{
		ActionID:          "lookup-order",
		Endpoint:          "/orders/status",
		Method:            "POST",
		RequiredVariables: []string{"customerId"},
		Payload:           []byte(`{"customer_id": "{{customerId}}"}`),
	}
	searcher := &fakeSearcher{items: map[string][]*domain.KnowledgeItem{
		"faq": {{ID: "K1", TenantID: "t1", Collection: "faq", Content: "Acompanhe seu pedido pelo nosso rastreio.", Score: 0.7, Action: action}},
	}}
	executor := &fakeActionExecutor{result: &bridge.ActionResult{ActionID: "lookup-order", Response: []byte(`{"status": "shipped"}`)}}
	svc := newTestService(&fakeConfigs{config: serviceConfig()}, searcher, executor, &fakeTurnStore{})

	reply, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{
		TenantID:       "t1",
		ConversationID: "c1",
		Text:           "status do pedido, por favor",
		SourceMetadata: map[string]string{"customerId": "c9"},
	})
	require.NoError(t, err)

	assert.Equal(t, "lookup-order", reply.ActionID)
	assert.Equal(t, 1, executor.callCount())
	assert.False(t, reply.Degraded)
}

func TestServiceDegradesButAlwaysReplies(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	executor := &fakeActionExecutor{err: errors.New("erp down")}
	svc := newTestService(&fakeConfigs{config: serviceConfig()}, searcher, executor, &fakeTurnStore{})

	reply, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{
		TenantID:       "t1",
		ConversationID: "c1",
		Text:           "qual o prazo de entrega?",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, reply.Text)
	assert.True(t, reply.Degraded)
	assert.Contains(t, reply.Text, "Oi!", "tenant greeting survives specialist failures")
}

func TestServiceRejectsInvalidMessage(t *testing.T) {
	svc := newTestService(&fakeConfigs{config: serviceConfig()}, &fakeSearcher{}, &fakeActionExecutor{}, &fakeTurnStore{})

	_, err := svc.HandleMessage(context.Background(), &domain.InboundMessage{TenantID: "t1"})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}
