package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
)

type fakeStore struct {
	mu    sync.Mutex
	turns map[string][]transcript.Turn
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{turns: make(map[string][]transcript.Turn)}
}

func (s *fakeStore) seed(sessionID string, n int) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		role := transcript.RoleUser
		if i%2 == 1 {
			role = transcript.RoleAssistant
		}
		s.turns[sessionID] = append(s.turns[sessionID], transcript.Turn{
			SessionID: sessionID,
			Role:      role,
			Content:   fmt.Sprintf("seed-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
}

func (s *fakeStore) Append(_ context.Context, turn transcript.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

func (s *fakeStore) LoadAll(_ context.Context, sessionID string) ([]transcript.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]transcript.Turn, len(s.turns[sessionID]))
	copy(out, s.turns[sessionID])
	return out, nil
}

func (s *fakeStore) LoadTail(ctx context.Context, sessionID string, limit int) ([]transcript.Turn, error) {
	all, err := s.LoadAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fakeStore) Count(ctx context.Context, sessionID string) (int, error) {
	all, err := s.LoadAll(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *fakeStore) Close() error { return nil }

type upsertCall struct {
	turn   transcript.Turn
	vector []float32
}

type fakeIndex struct {
	mu      sync.Mutex
	upserts []upsertCall
	results []transcript.Turn
	err     error
}

func (i *fakeIndex) Upsert(_ context.Context, turn transcript.Turn, vector []float32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.upserts = append(i.upserts, upsertCall{turn: turn, vector: vector})
	return nil
}

func (i *fakeIndex) Search(_ context.Context, _ string, _ []float32, k int) ([]transcript.Turn, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return nil, i.err
	}
	if len(i.results) > k {
		return i.results[:k], nil
	}
	return i.results, nil
}

func (i *fakeIndex) upsertCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.upserts)
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.vec == nil {
		return []float32{1, 0, 0}, nil
	}
	return e.vec, nil
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   [][]provider.Message
	err     error
	delay   time.Duration
}

func (c *fakeCompleter) Complete(_ context.Context, messages []provider.Message) (string, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, messages)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("fakeCompleter: no replies queued")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *fakeCompleter) lastCall() []provider.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramSamples(t *testing.T, h prometheus.Histogram) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error = %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}
