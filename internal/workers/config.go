package workers

// Config holds Workers configuration.
type Config struct {
	// MaxWorkers defines the worker pool maximum size.
	// Zero (default) means the size is set dynamically.
	MaxWorkers uint

	// StartImmediately defines whether Workers start executing tasks
	// immediately on construction, rather than waiting for an explicit
	// Start call.
	StartImmediately bool

	// StopOnError cancels remaining task execution on the first error.
	StopOnError bool

	// TasksBufferSize defines the size of the tasks channel buffer.
	// Zero means unbuffered, which requires Start to have been called
	// before AddTask (otherwise ErrInvalidState is returned).
	TasksBufferSize uint

	// ResultsBufferSize defines the size of the results channel buffer.
	ResultsBufferSize uint

	// ErrorsBufferSize defines the size of the outgoing errors channel buffer.
	ErrorsBufferSize uint

	// StopOnErrorErrorsBufferSize defines the size of the internal errors
	// buffer used when StopOnError is enabled. A small buffer triggers
	// cancellation quickly.
	StopOnErrorErrorsBufferSize uint

	// ErrorTagging wraps each task error with its correlation metadata
	// (id, input index) so callers can use ExtractTaskID/ExtractTaskIndex
	// to tell which submission a failure came from.
	ErrorTagging bool
}

// defaultConfig centralizes default values for Config. Applied by both
// New (when cfg is nil) and NewOptions (options builder base).
func defaultConfig() Config {
	return Config{
		MaxWorkers:                  0,
		StartImmediately:            false,
		StopOnError:                 false,
		TasksBufferSize:             0,
		ResultsBufferSize:           1024,
		ErrorsBufferSize:            1024,
		StopOnErrorErrorsBufferSize: 100,
		ErrorTagging:                false,
	}
}

// validateConfig performs lightweight invariant checks. Reserved for
// future validation expansion; MaxWorkers == 0 (dynamic) and > 0 (fixed)
// are both always valid, as is any buffer size.
func validateConfig(_ *Config) error {
	return nil
}
