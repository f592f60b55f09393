package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/telemetry"
	"github.com/google/uuid"
)

const defaultRequestTimeout = 10 * time.Second

const apologyText = "Desculpe, não consegui acessar as informações necessárias agora. Por favor, tente novamente em alguns instantes."

// ConfigResolver is the tenant configuration boundary.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// ConversationStore persists conversation turns.
type ConversationStore interface {
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error
}

// ServiceConfig holds the settings for constructing a Service.
type ServiceConfig struct {
	RequestTimeout time.Duration
}

// Service is the orchestration entry point: it resolves tenant context,
// builds and runs the request graph, persists the exchange and always
// returns a reply.
type Service struct {
	configs        ConfigResolver
	builder        *Builder
	scheduler      *Scheduler
	turns          ConversationStore
	logger         *log.Logger
	requestTimeout time.Duration
	now            func() time.Time
}

// NewService creates an orchestration service.
func NewService(configs ConfigResolver, builder *Builder, scheduler *Scheduler, turns ConversationStore, logger *log.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Service{
		configs:        configs,
		builder:        builder,
		scheduler:      scheduler,
		turns:          turns,
		logger:         logger,
		requestTimeout: timeout,
		now:            time.Now,
	}
}

// HandleMessage processes one inbound customer message end to end. The
// only hard failure is an invalid message; an unresolvable tenant
// configuration yields a tenant-agnostic apology, and specialist failures
// degrade the reply rather than dropping it.
func (s *Service) HandleMessage(ctx context.Context, msg *domain.InboundMessage) (*Reply, error) {
	if err := domain.ValidateInboundMessage(msg); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid inbound message", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.HandleMessage", telemetry.SpanAttributes{
		TenantID:       msg.TenantID,
		ConversationID: msg.ConversationID,
		Operation:      "message",
	})
	defer span.End()

	cfg, err := s.configs.Resolve(ctx, msg.TenantID)
	if err != nil {
		// No tenant context means no tenant-specific content and no
		// history write.
		s.logger.Printf("orchestrator: config unavailable for tenant %s: %v", msg.TenantID, err)
		span.SetError(err)
		return apologyReply(msg.ConversationID), nil
	}

	reqCtx := &RequestContext{
		TenantID:       msg.TenantID,
		ConversationID: msg.ConversationID,
		Message:        msg.Text,
		Metadata:       msg.SourceMetadata,
		Config:         cfg,
		Variables:      runtimeVariables(msg),
	}

	runCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	results, err := s.scheduler.Run(runCtx, reqCtx, s.builder.Build(reqCtx))
	if err != nil {
		s.logger.Printf("orchestrator: graph run failed for tenant %s: %v", msg.TenantID, err)
		span.SetError(err)
		return apologyReply(msg.ConversationID), nil
	}

	reply := replyFrom(results, reqCtx)
	s.persistExchange(ctx, msg, reply)
	return reply, nil
}

// replyFrom extracts the aggregation node's value, tolerating fallback
// shapes.
func replyFrom(results map[string]NodeResult, reqCtx *RequestContext) *Reply {
	if r, ok := results[nodeAggregate]; ok {
		if reply, ok := r.Value.(*Reply); ok && reply != nil {
			return reply
		}
	}
	return degradedReply(reqCtx)
}

// runtimeVariables builds the bridge runtime context from the message's
// source metadata.
func runtimeVariables(msg *domain.InboundMessage) map[string]interface{} {
	variables := make(map[string]interface{}, len(msg.SourceMetadata)+1)
	for k, v := range msg.SourceMetadata {
		variables[k] = v
	}
	variables["conversationId"] = msg.ConversationID
	return variables
}

// persistExchange appends the customer and assistant turns. History writes
// are best effort; a storage failure never fails the request.
func (s *Service) persistExchange(ctx context.Context, msg *domain.InboundMessage, reply *Reply) {
	if s.turns == nil {
		return
	}
	now := s.now()
	turns := []*domain.ConversationTurn{
		domain.NewConversationTurn(uuid.New().String(), msg.TenantID, msg.ConversationID, domain.TurnRoleCustomer, msg.Text, now),
		domain.NewConversationTurn(uuid.New().String(), msg.TenantID, msg.ConversationID, domain.TurnRoleAssistant, reply.Text, now),
	}
	for _, turn := range turns {
		if err := s.turns.AppendTurn(ctx, turn); err != nil {
			s.logger.Printf("orchestrator: failed to persist %s turn for conversation %s: %v", turn.Role, msg.ConversationID, err)
		}
	}
}

func apologyReply(conversationID string) *Reply {
	return &Reply{
		ConversationID: conversationID,
		Intent:         "general",
		Text:           apologyText,
		Degraded:       true,
	}
}
