package workers

import (
	"context"
	"fmt"
)

// entry pairs a task with the correlation metadata (id, input index) that
// error tagging attaches to a failure, so callers can tell which submitted
// unit of work a reported error belongs to.
type entry[R interface{}] struct {
	t   task[R]
	id  any
	idx int
}

type worker[R interface{}] struct {
	results chan R
	errors  chan error
	tagging bool
}

func newWorker[R interface{}](results chan R, errors chan error, tagging bool) *worker[R] {
	return &worker[R]{results: results, errors: errors, tagging: tagging}
}

func (w *worker[R]) execute(ctx context.Context, e entry[R]) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			w.errors <- w.tag(fmt.Errorf("%w: %v", ErrTaskPanicked, ePanic), e)
		}
	}()

	result, err := e.t.execute(ctx)

	if err != nil {
		w.errors <- w.tag(err, e)
		return
	}

	if _, ok := e.t.(*taskError[R]); !ok {
		w.results <- result
	}
}

func (w *worker[R]) tag(err error, e entry[R]) error {
	if !w.tagging {
		return err
	}
	return newTaskTaggedError(err, e.id, e.idx)
}
