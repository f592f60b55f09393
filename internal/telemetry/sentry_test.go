package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The helpers must be safe to call when Sentry was never initialized;
// every service path runs through them unconditionally.
func TestSpanHelpersWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "Orchestrator.HandleMessage", SpanAttributes{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Operation:      "message",
	})
	require.NotNil(t, span)
	assert.NotNil(t, ctx)

	span.SetError(errors.New("backend unavailable"))
	span.End()

	txCtx, tx := StartTransaction(context.Background(), "Archiver.ProcessJobs", "jobs")
	require.NotNil(t, tx)
	assert.NotNil(t, txCtx)
	tx.End()

	CaptureError(ctx, errors.New("boom"))
	CaptureMessage(ctx, "degraded startup")
	AddBreadcrumb(ctx, "backend", "POST /orders/status")
}

func TestStartSpanNestsUnderParent(t *testing.T) {
	parentCtx, parent := StartSpan(context.Background(), "Engine.Search", SpanAttributes{TenantID: "acme"})
	defer parent.End()

	_, child := StartSpan(parentCtx, "Engine.Search.dense", SpanAttributes{Collection: "faq"})
	require.NotNil(t, child.inner)
	assert.Equal(t, parent.inner.TraceID, child.inner.TraceID)
	child.End()
}
