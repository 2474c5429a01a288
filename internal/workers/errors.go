package workers

import "errors"

// Namespace prefixes sentinel error messages so they remain unambiguous
// when joined with errors from other packages (e.g. via errors.Join).
const Namespace = "workers"

var (
	// ErrInvalidState is returned by AddTask when the Workers have not been
	// started and the tasks channel is unbuffered, so there is nowhere to
	// place the task without blocking forever.
	ErrInvalidState = errors.New(
		Namespace + ": cannot add a task for non-started workers with unbuffered tasks channel",
	)
	// ErrTaskCancelled is returned when a task's context is cancelled before
	// its function returns.
	ErrTaskCancelled = errors.New(Namespace + ": task execution cancelled")
	// ErrTaskPanicked marks a task failure caused by a recovered panic.
	ErrTaskPanicked = errors.New(Namespace + ": task execution panicked")
	// ErrInvalidConfig is returned by NewOptions when the assembled
	// configuration is not usable (e.g. conflicting pool selection).
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
	// ErrInvalidTask is returned by AddTask when the supplied value does not
	// match one of the supported task function signatures.
	ErrInvalidTask = errors.New(Namespace + ": invalid task type")
)
