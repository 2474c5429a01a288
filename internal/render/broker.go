package render

import (
	"context"
	"time"

	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/workers"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// concurrency is the "design value: 2 concurrent renders" bound from
// spec.md §4.E.
const concurrency = 2

// renderResult is the teacher-style task[R] result type for this broker's
// Workers[R] instance (R = renderResult).
type renderResult struct {
	tokens  []string
	content []byte
}

// Broker is the render broker external collaborator (spec.md §4.E),
// adapted from the teacher's workers[R]/dispatcher[R]/pool.Pool engine: a
// fixed 2-worker pool executes render tasks, and completions call back into
// the Job Store's public API exactly as the teacher's worker posts to
// results/errors channels — here the channels are drained internally and
// turned into attach_content/mark_render_failed calls, matching §9's design
// note that a faithful port uses "a completion callback... that invokes
// attach_content".
type Broker struct {
	w         workers.Workers[renderResult]
	renderer  Renderer
	breaker   *gobreaker.CircuitBreaker[[]byte]
	store     *jobstore.Store
	logger    *zap.Logger
	drainDone chan struct{}
}

// NewBroker constructs a Broker bound to store, rendering via renderer
// behind a circuit breaker so a failing headless-browser renderer fails
// fast into mark_render_failed instead of permanently filling the 2-slot
// pool.
func NewBroker(ctx context.Context, store *jobstore.Store, renderer Renderer, logger *zap.Logger) (*Broker, error) {
	w, err := workers.NewOptions[renderResult](ctx,
		workers.WithFixedPool(concurrency),
		workers.WithStartImmediately(),
		workers.WithErrorTagging(),
		workers.WithTasksBuffer(concurrency*4),
	)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "render",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	b := &Broker{
		w:         w,
		renderer:  renderer,
		breaker:   breaker,
		store:     store,
		logger:    logger,
		drainDone: make(chan struct{}),
	}
	go b.drain()
	return b, nil
}

// Submit queues an asynchronous render of html; on success the bytes are
// attached to every token in tokens (multi-tenant fan-out shares one
// buffer, spec.md §4.E); on failure every token is marked failed. Submit
// itself never blocks on render completion and must not be called while
// holding the job-store lock.
func (b *Broker) Submit(html string, tokens []string) error {
	task := func(ctx context.Context) (renderResult, error) {
		content, err := b.breaker.Execute(func() ([]byte, error) {
			return b.renderer.Render(ctx, html)
		})
		if err != nil {
			return renderResult{}, err
		}
		return renderResult{tokens: tokens, content: content}, nil
	}
	return b.w.AddTaskWithID(tokens, task)
}

// drain turns the Workers[R] results/errors channels into job-store
// callbacks. Runs for the Broker's lifetime; exits once both channels are
// closed by Close.
func (b *Broker) drain() {
	defer close(b.drainDone)

	results := b.w.GetResults()
	errorsCh := b.w.GetErrors()
	for results != nil || errorsCh != nil {
		select {
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			for _, tok := range r.tokens {
				b.store.AttachContent(tok, r.content)
			}
		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			b.logger.Warn("render failed", zap.Error(err))
			if tokens, ok := workers.ExtractTaskID(err); ok {
				if toks, ok := tokens.([]string); ok {
					for _, tok := range toks {
						b.store.MarkRenderFailed(tok)
					}
				}
			}
		}
	}
}

// Stop shuts the broker down: cancels dispatch, waits for inflight renders,
// and closes the results/errors channels, reusing the teacher's
// lifecycleCoordinator sequence via Workers.Close. It blocks until the
// internal drain goroutine has observed both channels close.
func (b *Broker) Stop(_ context.Context) {
	b.w.Close()
	<-b.drainDone
}
