// Package engine holds the context assembly, compaction, and turn completion
// logic that sits between the HTTP surface and the memory tiers.
package engine

import (
	"context"

	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
)

// Completer is the model completion boundary.
type Completer interface {
	Complete(ctx context.Context, messages []provider.Message) (string, error)
}

// Embedder is the embedding provider boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RecallIndex is the semantic recall boundary.
type RecallIndex interface {
	Upsert(ctx context.Context, turn transcript.Turn, vector []float32) error
	Search(ctx context.Context, sessionID string, vector []float32, k int) ([]transcript.Turn, error)
}
