// Package inbox dispatches inbound activities to their handlers and reports
// what became of each one.
package inbox

import (
	"context"
	"net/url"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/handler"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// State of an inbound activity. The last three are terminal.
// Moderation runs between Validated and Dispatched.
type State int

const (
	Received State = iota
	Validated
	Dispatched
	Accepted
	Rejected
	Ignored
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Validated:
		return "validated"
	case Dispatched:
		return "dispatched"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return "ignored"
}

// Event reports the terminal state of one activity, and the last
// state it passed before that.
type Event struct {
	Activity *activity.Activity
	Stage    State // Received, Validated or Dispatched
	State    State
	Success  bool
	Err      error
}

type Observer interface {
	Observe(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// CounterObserver counts events by state and logs failures.
type CounterObserver struct{}

func (CounterObserver) Observe(_ context.Context, e Event) {
	telemetry.Increment("inbox_"+e.State.String(), 1)
	if e.Err != nil {
		telemetry.Error(e.Err, "%s [%s] %s after %s", e.Activity.Type, e.Activity.ID, e.State, e.Stage)
	}
}

// Dispatcher runs activities through validation and their handler.
type Dispatcher struct {
	registry  *handler.Registry
	blocklist *DomainBlocklist
	observers []Observer

	mu       sync.Mutex
	inflight map[uint64]struct{}
}

func NewDispatcher(registry *handler.Registry, blocklist *DomainBlocklist, observers ...Observer) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		blocklist: blocklist,
		observers: observers,
		inflight:  make(map[uint64]struct{}),
	}
}

// Observe adds an observer. Not safe to call while dispatching.
func (d *Dispatcher) Observe(o Observer) {
	d.observers = append(d.observers, o)
}

// Dispatch takes a to a terminal state and notifies the observers.
func (d *Dispatcher) Dispatch(ctx context.Context, a *activity.Activity) Event {
	e := d.dispatch(ctx, a)
	e.Success = e.State != Rejected
	for _, o := range d.observers {
		o.Observe(ctx, e)
	}
	return e
}

func (d *Dispatcher) dispatch(ctx context.Context, a *activity.Activity) Event {
	e := Event{Activity: a, Stage: Received}

	if a.ID != "" {
		key := xxh3.HashString(a.ID)
		if !d.claim(key) {
			telemetry.Trace("[%s] already in flight", a.ID)
			e.State = Ignored
			return e
		}
		defer d.release(key)
	}

	h, ok := d.registry.Lookup(a.Type)
	if !ok {
		telemetry.Trace("no handler for %s", a.Type)
		e.State = Ignored
		return e
	}
	if err := h.Validate(a); err != nil {
		e.State = Rejected
		e.Err = err
		return e
	}
	e.Stage = Validated

	if host := actorHost(a); d.blocklist.Blocked(host) {
		e.State = Rejected
		e.Err = errs.New(errs.Forbidden, "actor host %s is blocked", host)
		return e
	}

	e.Stage = Dispatched
	outcome, err := h.Handle(ctx, a)
	e.Err = err
	switch {
	case err != nil || outcome == handler.Rejected:
		e.State = Rejected
	case outcome == handler.Ignored:
		e.State = Ignored
	default:
		e.State = Accepted
	}
	return e
}

func (d *Dispatcher) claim(key uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[key]; ok {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key uint64) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

func actorHost(a *activity.Activity) string {
	u, err := url.Parse(a.ActorID())
	if err != nil {
		return ""
	}
	return u.Hostname()
}
