package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonaohana/vessale/internal/workers/pool"
)

// Workers is an interface that defines methods on Workers.
type Workers[R interface{}] interface {
	// Start starts the Workers and begins executing tasks. Start may be
	// called only once; later calls are no-ops. In case StopOnError is
	// set, task execution stops after the first error.
	Start(context.Context)

	// AddTask adds a task to the Workers queue. The task must be a
	// function with one of the following signatures:
	//
	// * func(context.Context) (R, error),
	// * func(context.Context) R,
	// * func(context.Context) error.
	//
	// If Workers have been started, the task is dispatched immediately
	// and executed as soon as a worker is available.
	AddTask(interface{}) error

	// AddTaskWithID behaves like AddTask, but associates id with the
	// task for error-tagging purposes (see ExtractTaskID).
	AddTaskWithID(id any, t interface{}) error

	// GetResults returns a channel to receive task execution results.
	GetResults() chan R

	// GetErrors returns a channel to receive task execution errors.
	GetErrors() chan error

	// Close stops accepting new tasks, waits for inflight tasks to
	// finish, and closes the results and errors channels. Close is safe
	// to call concurrently and runs its shutdown sequence exactly once.
	Close()
}

type workers[R interface{}] struct {
	config *Config

	startOnce sync.Once
	inflight  sync.WaitGroup
	idxSeq    atomic.Int64

	pool pool.Pool

	tasks   chan entry[R]
	results chan R
	errors  chan error // outward errors channel

	// When StopOnError is enabled, workers write into this smaller
	// internal buffer, which the error forwarder drains and relays into
	// the outward errors channel, then cancels dispatch.
	errorsBuf chan error

	cancel  context.CancelFunc
	closeCh chan struct{}
	fwdWG   sync.WaitGroup
	sendWG  sync.WaitGroup
	lc      *lifecycleCoordinator
}

// New creates a new Workers instance. It is not started automatically
// unless config.StartImmediately is set; otherwise call Start explicitly
// before the first AddTask on an unbuffered tasks channel
// (TasksBufferSize == 0).
func New[R interface{}](ctx context.Context, config *Config) Workers[R] {
	if config == nil {
		cfg := defaultConfig()
		config = &cfg
	}
	if err := validateConfig(config); err != nil {
		panic(err)
	}

	r := make(chan R, config.ResultsBufferSize)

	var workerErrors chan error
	if config.StopOnError {
		workerErrors = make(chan error, config.StopOnErrorErrorsBufferSize)
	} else {
		workerErrors = make(chan error, config.ErrorsBufferSize)
	}

	newWorkerFn := func() interface{} { return newWorker[R](r, workerErrors, config.ErrorTagging) }

	var p pool.Pool
	if config.MaxWorkers > 0 {
		p = pool.NewFixed(config.MaxWorkers, newWorkerFn)
	} else {
		p = pool.NewDynamic(newWorkerFn)
	}

	tasks := make(chan entry[R], config.TasksBufferSize)
	if config.TasksBufferSize == 0 {
		tasks = nil // AddTask returns ErrInvalidState until Start allocates it.
	}

	w := &workers[R]{
		config:  config,
		tasks:   tasks,
		results: r,
		pool:    p,
		closeCh: make(chan struct{}),
	}

	if config.StopOnError {
		w.errors = make(chan error, config.ErrorsBufferSize)
		w.errorsBuf = workerErrors
	} else {
		w.errors = workerErrors
	}

	if config.StartImmediately {
		w.Start(ctx)
	}

	return w
}

// Start starts the Workers and begins executing tasks.
func (w *workers[R]) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		if w.tasks == nil {
			w.tasks = make(chan entry[R])
		}

		ctx, w.cancel = context.WithCancel(ctx)

		if w.config.StopOnError {
			fwd := newErrorForwarder(w.errorsBuf, w.errors, w.closeCh, w.cancel, &w.sendWG)
			w.fwdWG.Add(1)
			go func() {
				defer w.fwdWG.Done()
				fwd.run()
			}()
		}

		d := newDispatcher[R](w.tasks, &w.inflight, w.pool)
		go d.run(ctx)

		w.lc = newLifecycleCoordinator(
			w.cancel,
			&w.inflight,
			w.closeCh,
			&w.fwdWG,
			&w.sendWG,
			w.drainInternalErrors,
			nil, // no completion-event stream in this build
			nil, // no reorderer in this build
			func() { close(w.results) },
			func() { close(w.errors) },
		)
	})
}

// AddTask adds a task to the Workers queue without correlation metadata.
func (w *workers[R]) AddTask(t interface{}) error {
	return w.addTask(nil, t)
}

// AddTaskWithID adds a task tagged with id for error correlation.
func (w *workers[R]) AddTaskWithID(id any, t interface{}) error {
	return w.addTask(id, t)
}

func (w *workers[R]) addTask(id any, t interface{}) error {
	tt, err := newTask[R](t)
	if err != nil {
		return err
	}

	if w.tasks == nil {
		return ErrInvalidState
	}

	idx := int(w.idxSeq.Add(1) - 1)
	w.tasks <- entry[R]{t: tt, id: id, idx: idx}
	return nil
}

// GetResults returns a channel to receive task execution results.
func (w *workers[R]) GetResults() chan R { return w.results }

// GetErrors returns a channel to receive task execution errors.
func (w *workers[R]) GetErrors() chan error { return w.errors }

// Close stops dispatch, waits for inflight work, and closes the outward
// channels. See lifecycleCoordinator for the exact sequence.
func (w *workers[R]) Close() {
	if w.lc == nil {
		// Start was never called: nothing is dispatching, so there is
		// nothing to wait for beyond closing the outward channels.
		close(w.results)
		close(w.errors)
		return
	}
	w.lc.Close()
}

// drainInternalErrors best-effort drains the StopOnError internal buffer
// after closeCh fires, so a late worker send never blocks forever.
func (w *workers[R]) drainInternalErrors() {
	if w.errorsBuf == nil {
		return
	}
	for {
		select {
		case <-w.errorsBuf:
		default:
			return
		}
	}
}
