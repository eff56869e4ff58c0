package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/encoderd/internal/anglestore"
)

// Registry owns the ordered set of encoders.
//
// Order is registration order and never changes while the process runs.
// Encoders whose device failed to activate stay registered (so Zero and
// status reporting still cover them) but are not polled.
//
// Registry is not safe for concurrent mutation: Setup and Zero must not
// overlap a running Loop. Zero enforces this and returns ErrLoopRunning.
type Registry struct {
	store     AngleStore
	open      DeviceOpener
	logger    Logger
	observers []Observer
	encoders  []*State
	running   atomic.Bool
	now       func() time.Time
}

// NewRegistry creates a registry persisting through store.
//
// open activates each encoder's device during Setup. A nil opener builds
// an offline registry with no devices, used by administrative commands
// such as zero that only touch persisted state.
func NewRegistry(store AngleStore, open DeviceOpener) *Registry {
	return &Registry{
		store:  store,
		open:   open,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddObserver registers an observer for persisted angle changes.
// Must be called before Setup to see baseline events.
func (r *Registry) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// Setup validates configs and registers one encoder per entry, in order.
//
// For each encoder the device is opened (a failure is logged and the
// encoder is excluded from polling) and the persisted angle is loaded.
// A missing, corrupt or unreadable record yields angle 0.0, which is
// saved immediately so the baseline is durable and visible.
//
// Returns an error wrapping ErrConfig for an invalid list; no device is
// opened in that case.
func (r *Registry) Setup(ctx context.Context, configs []EncoderConfig) error {
	if len(r.encoders) > 0 {
		return ErrAlreadySetup
	}
	if err := ValidateConfigs(configs); err != nil {
		return err
	}

	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			r.Close() //nolint:errcheck // Aborting setup
			r.encoders = nil
			return fmt.Errorf("setting up encoders: %w", err)
		}

		st := &State{Index: i, Config: cfg}
		if r.open != nil {
			dev, err := r.open(cfg)
			if err != nil {
				r.logger.Error("encoder device failed to activate, excluding from loop",
					"index", i,
					"name", cfg.Name,
					"error", fmt.Errorf("%w: %w", ErrDeviceFailed, err),
				)
			} else {
				st.Device = dev
				st.active = true
				st.poller = newPoller(dev)
			}
		}

		r.restore(st)
		r.encoders = append(r.encoders, st)

		r.logger.Info("encoder registered",
			"index", i,
			"name", cfg.Name,
			"pin_a", cfg.PinA,
			"pin_b", cfg.PinB,
			"active", st.active,
		)
	}

	r.logger.Info("registered encoders",
		"count", len(r.encoders),
		"active", r.ActiveCount(),
	)
	return nil
}

// restore loads the persisted angle for st, falling back to a saved zero.
func (r *Registry) restore(st *State) {
	angle, err := r.store.Load(st.Config.Slot)
	if err == nil {
		st.reset(angle)
		r.logger.Info("angle set",
			"index", st.Index,
			"name", st.Config.Name,
			"angle", angle,
		)
		return
	}

	switch {
	case errors.Is(err, anglestore.ErrNotFound):
		r.logger.Info("no saved angle, starting from zero", "index", st.Index, "name", st.Config.Name)
	case errors.Is(err, anglestore.ErrCorrupt):
		r.logger.Info("saved angle unreadable, starting from zero", "index", st.Index, "name", st.Config.Name, "error", err)
	default:
		r.logger.Warn("saved angle could not be loaded, starting from zero", "index", st.Index, "name", st.Config.Name, "error", err)
	}

	st.reset(0)
	if r.persist(st) {
		r.notify(st, 0, SourceBaseline)
	}
}

// persist saves st's angle, logging the outcome. Returns true on success.
func (r *Registry) persist(st *State) bool {
	if err := r.store.Save(st.Config.Slot, st.Angle); err != nil {
		r.logger.Error("angle could not be saved",
			"index", st.Index,
			"name", st.Config.Name,
			"angle", st.Angle,
			"error", fmt.Errorf("%w: %w", ErrPersistence, err),
		)
		return false
	}
	r.logger.Debug("angle recorded",
		"index", st.Index,
		"name", st.Config.Name,
		"angle", st.Angle,
	)
	return true
}

// move applies delta to st, persists it and reports the movement.
// Called only from the loop goroutine.
func (r *Registry) move(st *State, delta int64) {
	angle := st.advance(delta)
	saved := r.persist(st)
	r.logger.Info("movement detected",
		"index", st.Index,
		"name", st.Config.Name,
		"delta", delta,
		"angle", angle,
	)
	if saved {
		r.notify(st, delta, SourceMovement)
	}
}

// notify reports a persisted change to every observer.
func (r *Registry) notify(st *State, delta int64, source string) {
	if len(r.observers) == 0 {
		return
	}
	m := Movement{
		Index:  st.Index,
		Name:   st.Config.Name,
		Slot:   st.Config.Slot,
		Delta:  delta,
		Angle:  st.Angle,
		Source: source,
		Time:   r.now(),
	}
	for _, o := range r.observers {
		o.AngleChanged(m)
	}
}

// Zero sets every registered encoder's angle to 0.0 and persists it.
//
// Zero is an administrative operation for a stopped loop; it returns
// ErrLoopRunning if a Loop is currently running over this registry.
// Steps from polls still pending when Zero is called are discarded, so a
// late result cannot move the new baseline.
// Save failures are joined and returned after all encoders are processed.
func (r *Registry) Zero(ctx context.Context) error {
	if r.running.Load() {
		return ErrLoopRunning
	}

	var errs []error
	for _, st := range r.encoders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if st.poller != nil {
			st.poller.discard()
		}
		st.reset(0)
		if !r.persist(st) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrPersistence, st.Config.Name))
			continue
		}
		r.logger.Info("angle zeroed", "index", st.Index, "name", st.Config.Name)
		r.notify(st, 0, SourceZero)
	}
	return errors.Join(errs...)
}

// Readings returns a snapshot of every registered encoder in order.
func (r *Registry) Readings() []Reading {
	out := make([]Reading, 0, len(r.encoders))
	for _, st := range r.encoders {
		out = append(out, Reading{
			Index:  st.Index,
			Name:   st.Config.Name,
			Slot:   st.Config.Slot,
			Angle:  st.Angle,
			Active: st.active,
		})
	}
	return out
}

// Count returns the number of registered encoders.
func (r *Registry) Count() int {
	return len(r.encoders)
}

// ActiveCount returns the number of encoders being polled.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, st := range r.encoders {
		if st.active {
			n++
		}
	}
	return n
}

// active returns the polled encoders in registration order.
func (r *Registry) active() []*State {
	out := make([]*State, 0, len(r.encoders))
	for _, st := range r.encoders {
		if st.active {
			out = append(out, st)
		}
	}
	return out
}

// deactivate stops polling st and releases its device.
func (r *Registry) deactivate(st *State) {
	st.active = false
	if st.Device == nil {
		return
	}
	if err := st.Device.Close(); err != nil {
		r.logger.Warn("closing failed encoder device", "index", st.Index, "name", st.Config.Name, "error", err)
	}
	st.Device = nil
}

// Close releases every device handle.
func (r *Registry) Close() error {
	var errs []error
	for _, st := range r.encoders {
		if st.Device == nil {
			continue
		}
		if err := st.Device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing encoder %s: %w", st.Config.Name, err))
		}
		st.Device = nil
		st.active = false
	}
	return errors.Join(errs...)
}
