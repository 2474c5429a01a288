package workers

import (
	"context"
	"sync"

	"github.com/jonaohana/vessale/internal/workers/pool"
)

// dispatcher reads entries from the input channel and executes each on a
// worker borrowed from pool. It tracks inflight tasks with a WaitGroup so
// Close can wait for outstanding work before tearing down channels. The
// dispatcher stops when ctx.Done() fires; it never closes channels it
// doesn't own and doesn't drain remaining entries after cancellation.
type dispatcher[R any] struct {
	entries  <-chan entry[R]
	inflight *sync.WaitGroup
	pool     pool.Pool
}

func newDispatcher[R any](entries <-chan entry[R], inflight *sync.WaitGroup, p pool.Pool) *dispatcher[R] {
	return &dispatcher[R]{entries: entries, inflight: inflight, pool: p}
}

// run starts the dispatch loop and returns when the context is canceled.
func (d *dispatcher[R]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.entries:
			d.inflight.Add(1)
			go func(e entry[R]) {
				defer d.inflight.Done()
				d.execute(ctx, e)
			}(e)
		}
	}
}

func (d *dispatcher[R]) execute(ctx context.Context, e entry[R]) {
	ww := d.pool.Get().(*worker[R])
	ww.execute(ctx, e)
	d.pool.Put(ww)
}
