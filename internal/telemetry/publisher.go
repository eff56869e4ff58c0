package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/encoderd/internal/encoder"
)

const (
	// DefaultQueueSize is the number of events buffered ahead of the sinks.
	DefaultQueueSize = 256

	// sinkTimeout bounds one delivery to one sink.
	sinkTimeout = 5 * time.Second

	// drainTimeout bounds delivery of queued events after Run is cancelled.
	drainTimeout = 2 * time.Second
)

// Sink receives angle changes.
type Sink interface {
	Name() string
	Publish(ctx context.Context, m encoder.Movement) error
}

// Logger defines the logging interface used by the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher queues angle changes and delivers them to sinks.
type Publisher struct {
	sinks  []Sink
	queue  chan encoder.Movement
	logger Logger

	dropped   atomic.Uint64
	delivered atomic.Uint64

	// failing tracks sinks in a failure streak; only Run touches it.
	failing map[string]int
}

// NewPublisher creates a publisher with a queue of queueSize events.
func NewPublisher(queueSize int, sinks ...Sink) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		sinks:   sinks,
		queue:   make(chan encoder.Movement, queueSize),
		logger:  noopLogger{},
		failing: make(map[string]int),
	}
}

// SetLogger sets the logger for delivery failures.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// AngleChanged enqueues m without blocking. Implements encoder.Observer.
func (p *Publisher) AngleChanged(m encoder.Movement) {
	if len(p.sinks) == 0 {
		return
	}
	select {
	case p.queue <- m:
	default:
		if p.dropped.Add(1) == 1 {
			p.logger.Warn("telemetry queue full, dropping angle events", "capacity", cap(p.queue))
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Delivered returns how many events have been handed to every sink.
func (p *Publisher) Delivered() uint64 {
	return p.delivered.Load()
}

// Run delivers queued events until ctx is cancelled, then makes a bounded
// attempt to flush what is still queued. It always returns nil.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case m := <-p.queue:
			p.deliver(ctx, m)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case m := <-p.queue:
			p.deliver(ctx, m)
		default:
			if n := p.dropped.Load(); n > 0 {
				p.logger.Warn("telemetry events dropped", "count", n)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, m encoder.Movement) {
	for _, s := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Publish(sctx, m)
		cancel()
		p.record(s.Name(), m, err)
	}
	p.delivered.Add(1)
}

// record logs the first failure of a streak at WARN and the recovery at INFO.
func (p *Publisher) record(sink string, m encoder.Movement, err error) {
	streak := p.failing[sink]
	if err == nil {
		if streak > 0 {
			p.logger.Info("telemetry sink recovered", "sink", sink, "failed_events", streak)
			delete(p.failing, sink)
		}
		return
	}

	p.failing[sink] = streak + 1
	if streak == 0 {
		p.logger.Warn("telemetry sink failed", "sink", sink, "name", m.Name, "error", err)
		return
	}
	p.logger.Debug("telemetry sink still failing", "sink", sink, "name", m.Name, "error", err)
}

// Compile-time check that Publisher implements encoder.Observer.
var _ encoder.Observer = (*Publisher)(nil)
