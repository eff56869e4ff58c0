package encoder

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default loop timings.
const (
	DefaultInterval    = time.Second
	DefaultPollTimeout = 250 * time.Millisecond
)

// LoopState is the control loop's lifecycle state.
type LoopState int

const (
	Stopped LoopState = iota
	Running
)

// String implements fmt.Stringer.
func (s LoopState) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// LoopConfig holds control loop timings.
type LoopConfig struct {
	// Interval is the sleep between ticks. Default: 1s
	Interval time.Duration

	// PollTimeout bounds how long a tick waits for device polls.
	// Default: 250ms, capped at Interval.
	PollTimeout time.Duration
}

// Loop drives the periodic poll-accumulate-persist cycle.
//
// Each tick polls every active encoder in registration order, applies
// non-zero deltas to the angle and saves the new angle before moving on
// to the next encoder. Idle encoders cause no writes and no log events.
//
// The goroutine running Run is the only writer of encoder angles.
type Loop struct {
	registry    *Registry
	interval    time.Duration
	pollTimeout time.Duration
	logger      Logger

	mu     sync.Mutex
	state  LoopState
	stopCh chan struct{}
}

// NewLoop creates a stopped loop over registry.
func NewLoop(registry *Registry, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.PollTimeout > cfg.Interval {
		cfg.PollTimeout = cfg.Interval
	}

	return &Loop{
		registry:    registry,
		interval:    cfg.Interval,
		pollTimeout: cfg.PollTimeout,
		logger:      noopLogger{},
		state:       Stopped,
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// State returns the current lifecycle state.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run transitions to Running and ticks until Stop is called or ctx is
// cancelled, then returns nil. Stop and cancellation are observed at the
// top of the next tick and also interrupt the sleep between ticks.
//
// Returns ErrLoopRunning if the loop is already running.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.state == Running {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.state = Running
	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	l.registry.running.Store(true)
	l.mu.Unlock()

	defer func() {
		l.registry.running.Store(false)
		l.mu.Lock()
		l.state = Stopped
		l.mu.Unlock()
	}()

	l.logger.Info("control loop started",
		"interval", l.interval,
		"poll_timeout", l.pollTimeout,
		"encoders", l.registry.ActiveCount(),
	)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopped", "reason", context.Cause(ctx))
			return nil
		case <-stopCh:
			l.logger.Info("control loop stopped", "reason", "stop requested")
			return nil
		default:
		}

		l.Tick(ctx)

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
		case <-stopCh:
		case <-timer.C:
		}
	}
}

// Stop asks a running loop to exit. It is idempotent, safe to call from
// any goroutine, and a no-op when the loop is stopped.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Running || l.stopCh == nil {
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}

// Tick performs one poll-accumulate-persist cycle and returns the number
// of encoders that moved.
//
// All polls start together; results are then applied strictly in
// registration order within a shared PollTimeout window. Run calls Tick;
// calling it directly is only valid while the loop is stopped.
func (l *Loop) Tick(ctx context.Context) int {
	encoders := l.registry.active()
	if len(encoders) == 0 {
		return 0
	}

	expired := make(chan struct{})
	var once sync.Once
	expire := func() { once.Do(func() { close(expired) }) }
	timer := time.AfterFunc(l.pollTimeout, expire)
	defer timer.Stop()
	stopAfter := context.AfterFunc(ctx, expire)
	defer stopAfter()

	for _, st := range encoders {
		st.poller.start()
	}

	moved := 0
	for _, st := range encoders {
		res, ok := st.poller.collect(expired)
		if !ok {
			l.pollPending(st)
			continue
		}
		st.poller.missed = 0

		if res.err != nil {
			l.pollFailed(st, res.err)
			continue
		}
		if res.delta == 0 {
			continue
		}

		l.registry.move(st, res.delta)
		moved++
	}
	return moved
}

// pollPending logs a device that did not answer within the tick.
func (l *Loop) pollPending(st *State) {
	st.poller.missed++
	if st.poller.missed == 1 {
		l.logger.Warn("encoder poll still pending, skipping this tick",
			"index", st.Index,
			"name", st.Config.Name,
			"timeout", l.pollTimeout,
		)
		return
	}
	l.logger.Debug("encoder poll still pending",
		"index", st.Index,
		"name", st.Config.Name,
		"ticks", st.poller.missed,
	)
}

// pollFailed handles a device error; permanent failures stop polling.
func (l *Loop) pollFailed(st *State, err error) {
	if errors.Is(err, ErrDeviceFailed) {
		l.logger.Error("encoder device failed, excluding from loop",
			"index", st.Index,
			"name", st.Config.Name,
			"error", err,
		)
		l.registry.deactivate(st)
		return
	}
	l.logger.Warn("encoder poll failed",
		"index", st.Index,
		"name", st.Config.Name,
		"error", err,
	)
}
