package task

import (
	"time"

	"github.com/phrazzld/goalq/internal/events"
)

type options struct {
	now     func() time.Time
	emitter events.EventEmitter
}

// Option customizes a Dispatcher or Canceller.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEmitter publishes lifecycle events for every transition made.
func WithEmitter(emitter events.EventEmitter) Option {
	return func(o *options) { o.emitter = emitter }
}

func buildOptions(opts []Option) options {
	o := options{
		now:     func() time.Time { return time.Now().UTC() },
		emitter: events.NopEmitter{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
