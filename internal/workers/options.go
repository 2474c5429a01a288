package workers

import (
	"context"
	"fmt"
)

// Option configures Workers. Use NewOptions(ctx, opts...) to construct Workers.
type Option func(*configOptions) error

// internal builder state for options assembly.
type configOptions struct {
	cfg          Config
	poolSelected poolType
}

type poolType int

const (
	poolUnspecified poolType = iota
	poolDynamic
	poolFixed
)

// WithFixedPool selects a fixed-size worker pool with the given capacity (must be > 0).
func WithFixedPool(n uint) Option {
	return func(co *configOptions) error {
		if co.poolSelected != poolUnspecified && co.poolSelected != poolFixed {
			return fmt.Errorf("%w: WithFixedPool conflicts with WithDynamicPool", ErrInvalidConfig)
		}
		if n == 0 {
			return fmt.Errorf("%w: WithFixedPool requires n > 0", ErrInvalidConfig)
		}
		co.poolSelected = poolFixed
		co.cfg.MaxWorkers = n
		return nil
	}
}

// WithDynamicPool selects a dynamic-size worker pool (the default if no pool option is provided).
func WithDynamicPool() Option {
	return func(co *configOptions) error {
		if co.poolSelected != poolUnspecified && co.poolSelected != poolDynamic {
			return fmt.Errorf("%w: WithDynamicPool conflicts with WithFixedPool", ErrInvalidConfig)
		}
		co.poolSelected = poolDynamic
		co.cfg.MaxWorkers = 0
		return nil
	}
}

// WithTasksBuffer sets the size of the tasks channel buffer.
func WithTasksBuffer(size uint) Option {
	return func(co *configOptions) error { co.cfg.TasksBufferSize = size; return nil }
}

// WithResultsBuffer sets the size of the results channel buffer (default 1024).
func WithResultsBuffer(size uint) Option {
	return func(co *configOptions) error { co.cfg.ResultsBufferSize = size; return nil }
}

// WithErrorsBuffer sets the size of the outgoing errors channel buffer (default 1024).
func WithErrorsBuffer(size uint) Option {
	return func(co *configOptions) error { co.cfg.ErrorsBufferSize = size; return nil }
}

// WithStopOnErrorBuffer sets the size of the internal errors buffer used when StopOnError is enabled (default 100).
func WithStopOnErrorBuffer(size uint) Option {
	return func(co *configOptions) error { co.cfg.StopOnErrorErrorsBufferSize = size; return nil }
}

// WithStartImmediately starts workers execution immediately.
func WithStartImmediately() Option {
	return func(co *configOptions) error { co.cfg.StartImmediately = true; return nil }
}

// WithStopOnError stops tasks execution when the first error occurs.
func WithStopOnError() Option {
	return func(co *configOptions) error { co.cfg.StopOnError = true; return nil }
}

// WithErrorTagging wraps task errors with correlation metadata (id, index).
func WithErrorTagging() Option {
	return func(co *configOptions) error { co.cfg.ErrorTagging = true; return nil }
}

// NewOptions creates a new Workers instance using functional options. Unlike
// New, invalid or conflicting options are reported as an error rather than
// a panic, since option assembly commonly happens far from a recover point
// (e.g. inside a long-running service's startup path).
func NewOptions[R interface{}](ctx context.Context, opts ...Option) (Workers[R], error) {
	co := configOptions{cfg: defaultConfig(), poolSelected: poolUnspecified}
	for _, opt := range opts {
		if opt == nil {
			return nil, fmt.Errorf("%w: nil option", ErrInvalidConfig)
		}
		if err := opt(&co); err != nil {
			return nil, err
		}
	}

	// If pool type not specified, default to dynamic (MaxWorkers == 0).
	if co.poolSelected == poolUnspecified {
		co.poolSelected = poolDynamic
		co.cfg.MaxWorkers = 0
	}

	if err := validateConfig(&co.cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return New[R](ctx, &co.cfg), nil
}
