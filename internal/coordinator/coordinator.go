// Package coordinator implements the named, periodically-refreshed data
// source abstraction exposed to plugins.
//
// A coordinator owns one fetch operation supplied by the plugin. Refreshes
// are driven either by an explicit request or by a host-owned timer firing;
// the coordinator never retries internally — retry timing is entirely the
// host's responsibility via the next firing.
//
// State machine per instance:
//
//	Uninitialized → Refreshing → (Success | Failed) → Idle → Refreshing → …
//
// On success the new data snapshot is stored and every registered listener
// is notified, in registration order, exactly once. On failure the previous
// snapshot is retained (last-known-good) and listeners are not notified.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/monitoring"
	"github.com/hearthd/sandboxd/internal/shared/id"
)

// State is the coordinator lifecycle state.
type State int

// Coordinator states.
const (
	StateUninitialized State = iota
	StateRefreshing
	StateIdle
)

// UpdateFunc fetches a fresh data snapshot.
type UpdateFunc func(ctx context.Context) (any, error)

// UpdateFailedError reports a failed refresh, carrying the coordinator's
// name and the original cause.
type UpdateFailedError struct {
	Name string
	Err  error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update of %q failed: %v", e.Name, e.Err)
}

func (e *UpdateFailedError) Unwrap() error { return e.Err }

// Scheduler registers a coordinator's refresh interval with the host.
// Implemented by the runner, which owns the timer table and the channel.
type Scheduler interface {
	// ScheduleUpdate registers a periodic timer for the coordinator and
	// returns the timer ID the host will fire with.
	ScheduleUpdate(c *Coordinator) (id.TimerID, error)
}

// Options configures a coordinator.
type Options struct {
	// Name is the coordinator's logical name, used in timer IDs and errors.
	Name string
	// Interval enables periodic updates when positive. Sent to the host in
	// whole seconds.
	Interval time.Duration
	// Update fetches a fresh snapshot.
	Update UpdateFunc
}

// Listener is an explicit registration handle. Removing it guarantees the
// callback is not invoked by any refresh that starts afterwards; the
// listener set is copied before notification.
type Listener struct {
	c  *Coordinator
	fn func()
}

// Remove unregisters the listener.
func (l *Listener) Remove() {
	l.c.removeListener(l)
}

// Coordinator is one periodically-refreshed data source.
type Coordinator struct {
	name     string
	interval time.Duration
	update   UpdateFunc
	sched    Scheduler
	log      *logging.Logger
	metrics  *monitoring.Metrics

	mu          sync.Mutex
	state       State
	data        any
	lastSuccess bool
	timerID     id.TimerID
	listeners   []*Listener
}

// New creates a coordinator. The scheduler and metrics may be nil; without
// a scheduler, a configured interval is never registered.
func New(opts Options, sched Scheduler, log *logging.Logger, metrics *monitoring.Metrics) *Coordinator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Coordinator{
		name:        opts.Name,
		interval:    opts.Interval,
		update:      opts.Update,
		sched:       sched,
		log:         log.Named("coordinator").With(zap.String("name", opts.Name)),
		metrics:     metrics,
		state:       StateUninitialized,
		lastSuccess: true,
	}
}

// Name returns the coordinator's logical name.
func (c *Coordinator) Name() string { return c.name }

// Interval returns the configured refresh interval; zero disables periodic
// updates.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// TimerID returns the registered timer ID, empty before registration.
func (c *Coordinator) TimerID() id.TimerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timerID
}

// Data returns the last successfully fetched snapshot.
func (c *Coordinator) Data() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccess
}

// State returns the coordinator's lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddListener registers a callback observing successful refreshes and
// returns its removal handle.
func (c *Coordinator) AddListener(fn func()) *Listener {
	l := &Listener{c: c, fn: fn}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
	return l
}

func (c *Coordinator) removeListener(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.listeners {
		if cur == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// FirstRefresh performs one refresh synchronously. On success, if a
// periodic interval is configured and not yet registered, it registers the
// refresh interval with the host.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	needsTimer := c.interval > 0 && c.timerID == "" && c.sched != nil
	c.mu.Unlock()
	if !needsTimer {
		return nil
	}

	timerID, err := c.sched.ScheduleUpdate(c)
	if err != nil {
		return fmt.Errorf("schedule updates for %q: %w", c.name, err)
	}
	c.mu.Lock()
	c.timerID = timerID
	c.mu.Unlock()

	c.log.Info("registered periodic updates",
		zap.String("timer_id", timerID.String()),
		zap.Duration("interval", c.interval))
	return nil
}

// Refresh invokes the plugin's fetch operation. On success the snapshot is
// replaced and listeners notified; on failure the previous snapshot is
// retained and an *UpdateFailedError returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateRefreshing
	c.mu.Unlock()

	data, err := c.update(ctx)

	if err != nil {
		c.mu.Lock()
		c.lastSuccess = false
		c.state = StateIdle
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.RecordRefresh(c.name, false)
		}
		c.log.Warn("refresh failed", zap.Error(err))
		return &UpdateFailedError{Name: c.name, Err: err}
	}

	// Copy-on-notify: the listener set is snapshotted once per successful
	// refresh; registrations and removals never mutate a notification in
	// progress.
	c.mu.Lock()
	c.data = data
	c.lastSuccess = true
	c.state = StateIdle
	notify := make([]*Listener, len(c.listeners))
	copy(notify, c.listeners)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordRefresh(c.name, true)
	}
	c.log.Debug("refresh finished", zap.Int("listeners", len(notify)))

	for _, l := range notify {
		l.fn()
	}
	return nil
}
