package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/chayanin-k/rapport/internal/attachment"
	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
)

const summaryPreamble = "The conversation so far was long, so it has been summarized as follows:\n%s\nUse this context when replying."

// AssemblerConfig parameterizes one assembler: the persona directive and the
// three memory knobs. All handler surfaces share a single configured
// assembler instead of carrying their own variants.
type AssemblerConfig struct {
	Persona             string
	CompactionThreshold int
	TailLimit           int
	RecallK             int
}

func (c AssemblerConfig) withDefaults() AssemblerConfig {
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = 50
	}
	if c.TailLimit <= 0 {
		c.TailLimit = 15
	}
	if c.RecallK <= 0 {
		c.RecallK = 5
	}
	return c
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	SessionID      string
	Message        string
	AttachmentPath string // optional stored image, may have vanished by assembly time
}

// Assembled is the ordered context for a provider call plus the user-message
// embedding, computed exactly once and reused for recall search and the
// later writeback upsert.
type Assembled struct {
	Messages   []provider.Message
	UserVector []float32
}

// Assembler builds the bounded context window for a model call from the
// three memory tiers.
type Assembler struct {
	cfg       AssemblerConfig
	store     transcript.Store
	index     RecallIndex
	embedder  Embedder
	compactor *Compactor
	metrics   *observability.Metrics
}

func NewAssembler(cfg AssemblerConfig, store transcript.Store, index RecallIndex, embedder Embedder, compactor *Compactor, metrics *observability.Metrics) *Assembler {
	return &Assembler{
		cfg:       cfg.withDefaults(),
		store:     store,
		index:     index,
		embedder:  embedder,
		compactor: compactor,
		metrics:   metrics,
	}
}

// Assemble produces the ordered message list: persona, then either the full
// transcript or a summary plus recent tail, then semantically recalled
// turns, then the new user turn. For a fresh session the list is exactly
// [persona, user turn].
func (a *Assembler) Assemble(ctx context.Context, req TurnRequest) (Assembled, error) {
	if a.metrics != nil {
		a.metrics.ProviderRequests.WithLabelValues("embedding").Inc()
	}
	vector, err := a.embedder.Embed(ctx, req.Message)
	if err != nil {
		return Assembled{}, fmt.Errorf("embed user message: %w", err)
	}

	messages := []provider.Message{
		provider.TextMessage(transcript.RoleSystem, a.cfg.Persona),
	}

	compact, err := a.compactor.ShouldCompact(ctx, req.SessionID)
	if err != nil {
		return Assembled{}, err
	}

	if compact {
		summary, err := a.compactor.Compact(ctx, req.SessionID)
		if err != nil {
			return Assembled{}, err
		}
		messages = append(messages, provider.TextMessage(
			transcript.RoleSystem, fmt.Sprintf(summaryPreamble, summary),
		))

		tail, err := a.store.LoadTail(ctx, req.SessionID, a.cfg.TailLimit)
		if err != nil {
			return Assembled{}, fmt.Errorf("load transcript tail: %w", err)
		}
		messages = appendTurns(messages, tail)
	} else {
		full, err := a.store.LoadAll(ctx, req.SessionID)
		if err != nil {
			return Assembled{}, fmt.Errorf("load transcript: %w", err)
		}
		messages = appendTurns(messages, full)
	}

	recalled, err := a.index.Search(ctx, req.SessionID, vector, a.cfg.RecallK)
	if err != nil {
		return Assembled{}, fmt.Errorf("recall search: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecallResults.Observe(float64(len(recalled)))
	}
	messages = appendTurns(messages, recalled)

	messages = append(messages, a.userMessage(req))

	return Assembled{Messages: messages, UserVector: vector}, nil
}

// userMessage carries the new turn's text plus, when the stored attachment
// still exists, its inline image encoding. A file that vanished between
// upload and assembly is dropped silently and the turn proceeds text-only.
func (a *Assembler) userMessage(req TurnRequest) provider.Message {
	content := []provider.ContentPart{provider.TextPart(req.Message)}

	if req.AttachmentPath != "" {
		dataURL, err := attachment.EncodeDataURL(req.AttachmentPath)
		switch {
		case err == nil:
			content = append(content, provider.ImagePart(dataURL))
		case errors.Is(err, fs.ErrNotExist):
			// Attachment gone; proceed text-only.
		default:
			log.Printf("attachment encode failed for session %s: %v", req.SessionID, err)
		}
	}

	return provider.Message{Role: transcript.RoleUser, Content: content}
}

// appendTurns maps stored turns onto plain text messages. Recalled and
// replayed turns never carry attachments.
func appendTurns(messages []provider.Message, turns []transcript.Turn) []provider.Message {
	for _, t := range turns {
		messages = append(messages, provider.TextMessage(t.Role, t.Content))
	}
	return messages
}
