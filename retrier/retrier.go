// Package retrier polls until a condition holds or a time limit passes.
//
//	r := retrier.New(retrier.Options{})
//	err := r.Do(refresh).ForNoLongerThan(15*time.Second).Until(ctx, changed)
//
// Every attempt is separated by a minimum interval and the loop stops as
// soon as ctx is cancelled.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a poll when no timeout is given.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval separates two attempts.
	DefaultInterval = 50 * time.Millisecond
)

// ErrTimedOut is returned when the condition did not hold within the limit.
var ErrTimedOut = errors.New("retrier: timed out")

// Action changes state between two checks.
type Action func(ctx context.Context) error

// Condition reports whether polling can stop.
type Condition func(ctx context.Context) (bool, error)

// Noop is an Action that does nothing, for pure waits.
func Noop(context.Context) error { return nil }

// Options configures a Retrier.
type Options struct {
	// Timeout used when a call passes zero. Default: DefaultTimeout.
	Timeout time.Duration
	// Interval between attempts. Default: DefaultInterval.
	Interval time.Duration
	// Now reads the clock deadlines are measured against. Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Retrier starts polls. It holds configuration only and is safe for
// concurrent use; each poll tracks its own state in an Attempt.
type Retrier struct {
	opts Options
}

// New creates a Retrier.
func New(opts Options) *Retrier {
	opts.defaults()
	return &Retrier{opts: opts}
}

// DoUntil runs action repeatedly until cond holds, checking cond before
// each run. A zero timeout means the configured default.
func (r *Retrier) DoUntil(ctx context.Context, action Action, cond Condition, timeout time.Duration) error {
	return r.Do(action).ForNoLongerThan(timeout).Until(ctx, cond)
}

// DontDoUntil waits until whenFulfilled holds and then runs perform once.
// perform is skipped when the wait times out.
func (r *Retrier) DontDoUntil(ctx context.Context, perform Action, whenFulfilled Condition, timeout time.Duration) error {
	a := r.attempt(Noop, timeout)
	if err := a.run(ctx, whenFulfilled); err != nil {
		return err
	}
	return perform(ctx)
}

// Do starts configuring a poll that runs action between checks.
func (r *Retrier) Do(action Action) *Attempt {
	return r.attempt(action, 0)
}

func (r *Retrier) attempt(action Action, timeout time.Duration) *Attempt {
	if timeout <= 0 {
		timeout = r.opts.Timeout
	}
	return &Attempt{r: r, action: action, timeout: timeout}
}

// State of an Attempt.
type State int

const (
	Configuring State = iota
	Running
	Done
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Done:
		return "done"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Attempt is one poll, configured fluently and then run by Until.
type Attempt struct {
	r       *Retrier
	action  Action
	timeout time.Duration

	mu       sync.Mutex
	state    State
	attempts int
}

// ForNoLongerThan sets the time limit. Zero keeps the default.
func (a *Attempt) ForNoLongerThan(d time.Duration) *Attempt {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// Until runs the poll. It returns nil once cond holds, an error wrapping
// ErrTimedOut when the limit passes, ctx.Err() on cancellation, or the
// first error returned by cond or the action.
func (a *Attempt) Until(ctx context.Context, cond Condition) error {
	return a.run(ctx, cond)
}

// State returns where the attempt is in its lifecycle.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns how many times the action ran.
func (a *Attempt) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *Attempt) set(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Attempt) run(ctx context.Context, cond Condition) error {
	a.set(Running)
	now := a.r.opts.Now
	deadline := now().Add(a.timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			a.set(Failed)
			return err
		}
		if ok {
			a.set(Done)
			return nil
		}
		if !now().Before(deadline) {
			a.set(TimedOut)
			a.r.opts.Logger.Debug("retrier: timed out", "timeout", a.timeout, "attempts", a.Attempts())
			return fmt.Errorf("%w after %s", ErrTimedOut, a.timeout)
		}
		if err := a.action(ctx); err != nil {
			a.set(Failed)
			return err
		}
		a.mu.Lock()
		a.attempts++
		a.mu.Unlock()
		if err := sleepCtx(ctx, a.r.opts.Interval); err != nil {
			a.set(Failed)
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
