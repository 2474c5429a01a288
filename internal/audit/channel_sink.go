package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelSink buffers events on a bounded channel drained
// by a single goroutine that RPUSHes them onto a Redis list. A full buffer
// drops the event instead of applying backpressure to dispatch, per
// spec.md §9's explicit instruction.
type ChannelSink struct {
	events chan Event
	client *redis.Client
	key    string
	logger *zap.Logger
	done   chan struct{}
}

// NewChannelSink constructs a ChannelSink that pushes onto listKey via
// client, buffering up to bufSize pending events. Call Run in its own
// goroutine to start draining, and Close to stop.
func NewChannelSink(client *redis.Client, listKey string, bufSize int, logger *zap.Logger) *ChannelSink {
	return &ChannelSink{
		events: make(chan Event, bufSize),
		client: client,
		key:    listKey,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Record implements Sink. It never blocks: if the buffer is full, the event
// is dropped and logged at debug level.
func (s *ChannelSink) Record(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Debug("audit sink buffer full, dropping event", zap.String("stage", e.Stage), zap.String("token", e.Token))
	}
}

// Run drains buffered events into Redis until ctx is cancelled or Close is
// called. Intended to run in its own goroutine for the lifetime of the
// process.
func (s *ChannelSink) Run(ctx context.Context) {
	for {
		select {
		case e := <-s.events:
			s.deliver(ctx, e)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *ChannelSink) deliver(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("audit event marshal failed", zap.Error(err))
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.RPush(pushCtx, s.key, payload).Err(); err != nil {
		s.logger.Warn("audit sink delivery failed", zap.Error(errors.Wrap(err, "redis rpush")))
	}
}

// Close stops Run. Safe to call once.
func (s *ChannelSink) Close() {
	close(s.done)
}
