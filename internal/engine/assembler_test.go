package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/transcript"
)

func newTestAssembler(store *fakeStore, index *fakeIndex, embedder *fakeEmbedder, completer *fakeCompleter) *Assembler {
	compactor := NewCompactor(store, completer, embedder, index, 50, nil)
	return NewAssembler(AssemblerConfig{
		Persona:             "persona directive",
		CompactionThreshold: 50,
		TailLimit:           15,
		RecallK:             5,
	}, store, index, embedder, compactor, nil)
}

func TestAssembleFreshSession(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{}
	embedder := &fakeEmbedder{}
	a := newTestAssembler(store, index, embedder, &fakeCompleter{})

	asm, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if len(asm.Messages) != 2 {
		t.Fatalf("fresh session context has %d messages, want exactly [persona, user]", len(asm.Messages))
	}
	if asm.Messages[0].Role != transcript.RoleSystem || asm.Messages[0].Content[0].Text != "persona directive" {
		t.Fatalf("message 0 = %+v, want persona system message", asm.Messages[0])
	}
	last := asm.Messages[len(asm.Messages)-1]
	if last.Role != transcript.RoleUser || last.Content[0].Text != "hello" {
		t.Fatalf("last message = %+v, want the new user turn", last)
	}
	if len(asm.UserVector) == 0 {
		t.Fatal("Assemble() returned no user vector")
	}
}

func TestAssembleEmbedsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	a := newTestAssembler(store, &fakeIndex{}, embedder, &fakeCompleter{})

	if _, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"}); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if n := embedder.callCount(); n != 1 {
		t.Fatalf("embedder called %d times during assembly, want 1", n)
	}
}

func TestAssembleFullTranscriptBelowThreshold(t *testing.T) {
	store := newFakeStore()
	store.seed("s1", 10)
	a := newTestAssembler(store, &fakeIndex{}, &fakeEmbedder{}, &fakeCompleter{})

	asm, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s1", Message: "next"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	// persona + 10 transcript turns + 0 recalled + user
	if len(asm.Messages) != 12 {
		t.Fatalf("context has %d messages, want 12", len(asm.Messages))
	}
	if asm.Messages[1].Content[0].Text != "seed-0" {
		t.Fatalf("first replayed turn = %q, want seed-0", asm.Messages[1].Content[0].Text)
	}
}

func TestAssembleCompactsPastThreshold(t *testing.T) {
	store := newFakeStore()
	store.seed("s2", 51)
	index := &fakeIndex{results: []transcript.Turn{
		{SessionID: "s2", Role: transcript.RoleUser, Content: "recalled-1"},
		{SessionID: "s2", Role: transcript.RoleAssistant, Content: "recalled-2"},
	}}
	completer := &fakeCompleter{replies: []string{"the conversation so far in one line"}}
	a := newTestAssembler(store, index, &fakeEmbedder{}, completer)

	asm, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s2", Message: "and now?"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	// persona + summary + 15 tail + 2 recalled + user, never the full 51.
	want := 1 + 1 + 15 + 2 + 1
	if len(asm.Messages) != want {
		t.Fatalf("compacted context has %d messages, want %d", len(asm.Messages), want)
	}
	if len(asm.Messages) > 23 {
		t.Fatalf("compacted context has %d messages, must stay within 23", len(asm.Messages))
	}
	summary := asm.Messages[1]
	if summary.Role != transcript.RoleSystem || !strings.Contains(summary.Content[0].Text, "the conversation so far in one line") {
		t.Fatalf("message 1 = %+v, want summary system message", summary)
	}
	if asm.Messages[2].Content[0].Text != "seed-36" {
		t.Fatalf("tail starts at %q, want seed-36 (last 15 of 51)", asm.Messages[2].Content[0].Text)
	}
}

func TestAssembleDropsMissingAttachment(t *testing.T) {
	store := newFakeStore()
	a := newTestAssembler(store, &fakeIndex{}, &fakeEmbedder{}, &fakeCompleter{})

	asm, err := a.Assemble(context.Background(), TurnRequest{
		SessionID:      "s1",
		Message:        "look at this",
		AttachmentPath: filepath.Join(t.TempDir(), "gone.png"),
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	last := asm.Messages[len(asm.Messages)-1]
	if len(last.Content) != 1 || last.Content[0].Type != "text" {
		t.Fatalf("user message content = %+v, want single text part", last.Content)
	}
}

func TestAssembleRecalledTurnsAreTextOnly(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{results: []transcript.Turn{
		{SessionID: "s1", Role: transcript.RoleSummary, Content: "old summary", Timestamp: time.Now()},
	}}
	a := newTestAssembler(store, index, &fakeEmbedder{}, &fakeCompleter{})

	asm, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s1", Message: "hi"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	recalled := asm.Messages[1]
	if recalled.Role != transcript.RoleSummary || recalled.Content[0].Type != "text" {
		t.Fatalf("recalled message = %+v, want text-only with preserved role", recalled)
	}
}

func TestAssembleRecordsMetrics(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{results: []transcript.Turn{
		{SessionID: "s1", Role: transcript.RoleUser, Content: "recalled one"},
		{SessionID: "s1", Role: transcript.RoleAssistant, Content: "recalled two"},
	}}
	embedder := &fakeEmbedder{}
	completer := &fakeCompleter{}
	m := observability.NewMetrics("assemblemetrics")

	compactor := NewCompactor(store, completer, embedder, index, 50, m)
	a := NewAssembler(AssemblerConfig{Persona: "persona directive"}, store, index, embedder, compactor, m)

	if _, err := a.Assemble(context.Background(), TurnRequest{SessionID: "s1", Message: "hello"}); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	count, sum := histogramSamples(t, m.RecallResults)
	if count != 1 || sum != 2 {
		t.Fatalf("recall results samples = (%d, %v), want one observation of 2", count, sum)
	}
	if v := counterValue(t, m.ProviderRequests.WithLabelValues("embedding")); v != 1 {
		t.Fatalf("provider requests{embedding} = %v, want 1", v)
	}
}
