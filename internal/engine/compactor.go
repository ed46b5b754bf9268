package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
)

const summarizeDirective = "Summarize this conversation into a single concise paragraph. " +
	"State the main context of what was discussed, for example: " +
	"\"the user invited the companion on a beach trip and they are picking outfits\"."

// Compactor condenses a long transcript into one natural-language summary.
// Summaries are re-derived from the full transcript on every compaction
// rather than incrementally, which costs provider calls but avoids
// summary-of-summary drift.
type Compactor struct {
	store     transcript.Store
	completer Completer
	embedder  Embedder
	index     RecallIndex
	threshold int
	metrics   *observability.Metrics
}

func NewCompactor(store transcript.Store, completer Completer, embedder Embedder, index RecallIndex, threshold int, metrics *observability.Metrics) *Compactor {
	if threshold <= 0 {
		threshold = 50
	}
	return &Compactor{
		store:     store,
		completer: completer,
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		metrics:   metrics,
	}
}

// ShouldCompact reports whether the session's transcript has grown past the
// threshold. True exactly when the stored turn count exceeds it.
func (c *Compactor) ShouldCompact(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.store.Count(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("count transcript: %w", err)
	}
	return n > c.threshold, nil
}

// Compact renders the whole transcript, asks the completion provider for a
// summary, and records the summary in the recall index under the synthetic
// summary role. A failed embed or upsert degrades to "summary produced, not
// semantically recallable" and never discards the summary text.
func (c *Compactor) Compact(ctx context.Context, sessionID string) (string, error) {
	turns, err := c.store.LoadAll(ctx, sessionID)
	if err != nil {
		c.observeCompaction("error")
		return "", fmt.Errorf("load transcript: %w", err)
	}

	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "[%s]: %s\n", t.Role, t.Content)
	}

	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues("chat").Inc()
	}
	summary, err := c.completer.Complete(ctx, []provider.Message{
		provider.TextMessage(transcript.RoleSystem, summarizeDirective),
		provider.TextMessage(transcript.RoleUser, history.String()),
	})
	if err != nil {
		c.observeCompaction("error")
		return "", fmt.Errorf("summarize transcript: %w", err)
	}

	summaryTurn := transcript.Turn{
		SessionID: sessionID,
		Role:      transcript.RoleSummary,
		Content:   summary,
		Timestamp: time.Now().UTC(),
	}

	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues("embedding").Inc()
	}
	vector, err := c.embedder.Embed(ctx, summary)
	if err != nil {
		log.Printf("summary embed failed for session %s: %v", sessionID, err)
		c.observeCompaction("degraded")
		return summary, nil
	}
	if err := c.index.Upsert(ctx, summaryTurn, vector); err != nil {
		log.Printf("summary upsert failed for session %s: %v", sessionID, err)
		c.observeCompaction("degraded")
		return summary, nil
	}

	c.observeCompaction("ok")
	return summary, nil
}

func (c *Compactor) observeCompaction(outcome string) {
	if c.metrics != nil {
		c.metrics.Compactions.WithLabelValues(outcome).Inc()
	}
}
