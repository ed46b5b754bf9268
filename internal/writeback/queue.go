// Package writeback persists completed turns off the response path. Jobs are
// handed to a fixed worker pool; each job runs its steps in order but
// best-effort, so one failed step never rolls back or blocks the others.
package writeback

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/transcript"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RecallIndex interface {
	Upsert(ctx context.Context, turn transcript.Turn, vector []float32) error
}

// Job records one completed exchange. UserVector is the embedding computed
// during context assembly, reused here so the user text is embedded once.
type Job struct {
	UserTurn      transcript.Turn
	AssistantTurn transcript.Turn
	UserVector    []float32
}

var (
	ErrQueueFull   = errors.New("writeback queue full")
	ErrQueueClosed = errors.New("writeback queue closed")
)

// Queue is a bounded worker pool. Enqueue never blocks the response path;
// when the buffer is full, the job is dropped and counted.
type Queue struct {
	store    transcript.Store
	index    RecallIndex
	embedder Embedder
	metrics  *observability.Metrics

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewQueue(store transcript.Store, index RecallIndex, embedder Embedder, metrics *observability.Metrics, workers, buffer int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	q := &Queue{
		store:    store,
		index:    index,
		embedder: embedder,
		metrics:  metrics,
		jobs:     make(chan Job, buffer),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue accepts a job unless the buffer is full or draining has started.
// The send happens under the same mutex Drain takes before closing the jobs
// channel, so a turn finishing mid-shutdown gets ErrQueueClosed instead of
// a send on a closed channel.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		if q.metrics != nil {
			q.metrics.WritebackFailures.WithLabelValues("enqueue").Inc()
		}
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		if q.metrics != nil {
			q.metrics.WritebackDepth.Inc()
		}
		return nil
	default:
		if q.metrics != nil {
			q.metrics.WritebackFailures.WithLabelValues("enqueue").Inc()
		}
		return ErrQueueFull
	}
}

// Drain stops intake and waits for in-flight jobs, bounded by ctx. Safe to
// call more than once.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
		if q.metrics != nil {
			q.metrics.WritebackDepth.Dec()
		}
	}
}

// run executes the persistence steps in order. Steps are independent: a
// failure is logged under its step name and the remaining steps still run.
// Writeback jobs deliberately outlive the originating request, so each job
// gets its own context.
func (q *Queue) run(job Job) {
	ctx := context.Background()
	sessionID := job.UserTurn.SessionID

	q.step(sessionID, "user_transcript", func() error {
		return q.store.Append(ctx, job.UserTurn)
	})
	q.step(sessionID, "user_recall", func() error {
		return q.index.Upsert(ctx, job.UserTurn, job.UserVector)
	})
	q.step(sessionID, "assistant_transcript", func() error {
		return q.store.Append(ctx, job.AssistantTurn)
	})

	var assistantVector []float32
	q.step(sessionID, "assistant_embed", func() error {
		if q.metrics != nil {
			q.metrics.ProviderRequests.WithLabelValues("embedding").Inc()
		}
		var err error
		assistantVector, err = q.embedder.Embed(ctx, job.AssistantTurn.Content)
		return err
	})
	if len(assistantVector) > 0 {
		q.step(sessionID, "assistant_recall", func() error {
			return q.index.Upsert(ctx, job.AssistantTurn, assistantVector)
		})
	}
}

func (q *Queue) step(sessionID, name string, fn func() error) {
	if err := fn(); err != nil {
		if q.metrics != nil {
			q.metrics.WritebackFailures.WithLabelValues(name).Inc()
		}
		log.Printf("writeback %s failed for session %s: %v", name, sessionID, err)
	}
}
