package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
	"github.com/chayanin-k/rapport/internal/writeback"
)

// Engine runs one conversational turn end to end: assemble the context,
// call the completion provider, hand persistence to the writeback queue, and
// return the reply. The caller gets the reply before anything is persisted.
type Engine struct {
	assembler *Assembler
	completer Completer
	queue     *writeback.Queue
	metrics   *observability.Metrics
}

func New(assembler *Assembler, completer Completer, queue *writeback.Queue, metrics *observability.Metrics) *Engine {
	return &Engine{
		assembler: assembler,
		completer: completer,
		queue:     queue,
		metrics:   metrics,
	}
}

func (e *Engine) Turn(ctx context.Context, req TurnRequest) (string, error) {
	start := time.Now()

	asm, err := e.assembler.Assemble(ctx, req)
	if err != nil {
		e.observeOutcome("assembly_error")
		return "", err
	}
	if e.metrics != nil {
		e.metrics.ContextMessages.Observe(float64(len(asm.Messages)))
		e.metrics.ProviderRequests.WithLabelValues("chat").Inc()
	}

	reply, err := e.completer.Complete(ctx, asm.Messages)
	if err != nil {
		e.observeProviderError(err)
		e.observeOutcome("provider_error")
		return "", err
	}

	// The user turn existed the moment the request arrived; the assistant
	// turn exists only now that the reply does.
	job := writeback.Job{
		UserTurn: transcript.Turn{
			SessionID: req.SessionID,
			Role:      transcript.RoleUser,
			Content:   req.Message,
			Timestamp: start.UTC(),
		},
		AssistantTurn: transcript.Turn{
			SessionID: req.SessionID,
			Role:      transcript.RoleAssistant,
			Content:   reply,
			Timestamp: time.Now().UTC(),
		},
		UserVector: asm.UserVector,
	}
	if err := e.queue.Enqueue(job); err != nil {
		// The reply already exists; losing the writeback degrades memory
		// but must not fail the turn.
		log.Printf("writeback enqueue failed for session %s: %v", req.SessionID, err)
	}

	e.observeOutcome("ok")
	if e.metrics != nil {
		e.metrics.ObserveTurnLatency(time.Since(start))
	}
	return reply, nil
}

func (e *Engine) observeOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) observeProviderError(err error) {
	if e.metrics == nil {
		return
	}
	var pe *provider.ProviderError
	switch {
	case errors.As(err, &pe):
		e.metrics.ProviderErrors.WithLabelValues("chat", "envelope").Inc()
	case errors.Is(err, provider.ErrMalformedResponse):
		e.metrics.ProviderErrors.WithLabelValues("chat", "malformed").Inc()
	default:
		e.metrics.ProviderErrors.WithLabelValues("chat", "transport").Inc()
	}
}
