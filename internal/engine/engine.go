package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/formsync/internal/ir"
)

// Coordinator is the single component allowed to apply cross-field
// mutations. It owns a RuleTable and a reference to a Registry and lives for
// one form session.
//
// Thread-safety model:
//   - Emit(): single writer. Concurrent or reentrant calls fail with
//     ReentrantDispatchError; hosts with several producers use a Loop.
//   - Rules(), Session(), Clock(), Dispatching(): safe from any goroutine.
//   - Registry(): the registry has no lock of its own; read field state
//     from the goroutine that emits.
type Coordinator struct {
	registry  *Registry
	rules     *RuleTable
	clock     *Clock
	session   string
	logger    *slog.Logger
	observers []Observer

	dispatching atomic.Bool
	active      atomic.Value // ir.EventKind of the dispatch in progress
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the logical clock. Used to resume a journaled session.
func WithClock(clock *Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSession sets the session ID stamped on dispatch records.
func WithSession(id string) Option {
	return func(c *Coordinator) {
		c.session = id
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// New creates a Coordinator over reg and rules.
//
// Every write target that is already registered is checked against the
// field's capabilities; a write the field cannot accept is a
// ConfigurationError and New fails. Targets not yet registered are checked
// again at dispatch time and fail there with UnknownFieldError.
func New(reg *Registry, rules *RuleTable, opts ...Option) (*Coordinator, error) {
	if reg == nil {
		return nil, &ConfigurationError{Message: "registry is nil"}
	}
	if rules == nil {
		return nil, &ConfigurationError{Message: "rule table is nil"}
	}

	err := rules.each(func(_ ir.EventKind, r Reaction) error {
		for _, w := range r.Writes {
			if !reg.Has(w.Field) {
				continue
			}
			if err := reg.checkTarget(r.ID, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		registry: reg,
		rules:    rules,
		clock:    NewClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Registry returns the field registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Rules returns the rule table.
func (c *Coordinator) Rules() *RuleTable {
	return c.rules
}

// Session returns the session ID.
func (c *Coordinator) Session() string {
	return c.session
}

// Clock returns the logical clock.
func (c *Coordinator) Clock() *Clock {
	return c.clock
}

// Dispatching reports whether an emit is in progress.
func (c *Coordinator) Dispatching() bool {
	return c.dispatching.Load()
}

// Active returns the kind of the dispatch in progress, or "" when idle.
func (c *Coordinator) Active() ir.EventKind {
	if !c.dispatching.Load() {
		return ""
	}
	active, _ := c.active.Load().(ir.EventKind)
	return active
}

// Emit dispatches ev synchronously. See EmitRecord.
func (c *Coordinator) Emit(ev ir.Event) error {
	_, err := c.EmitRecord(ev)
	return err
}

// EmitRecord dispatches ev and returns the dispatch record.
//
// Reactions for ev.Kind run in registration order. Each reaction's reads
// and writes are resolved before it writes anything. On failure the
// remaining reactions are skipped, earlier reactions stay applied and the
// error is a *DispatchError wrapping the cause.
//
// A kind with no reactions is a no-op: no clock tick, no observer call.
// A kind outside the rule table's declared set is a ConfigurationError.
func (c *Coordinator) EmitRecord(ev ir.Event) (ir.Dispatch, error) {
	ev.Payload = ir.OrNull(ev.Payload)

	if !c.dispatching.CompareAndSwap(false, true) {
		active, _ := c.active.Load().(ir.EventKind)
		c.logger.Warn("reentrant emit rejected", "kind", ev.Kind, "active", active)
		return ir.Dispatch{}, &ReentrantDispatchError{Kind: ev.Kind, Active: active}
	}
	c.active.Store(ev.Kind)
	defer c.dispatching.Store(false)

	if !c.rules.Declares(ev.Kind) {
		return ir.Dispatch{}, &ConfigurationError{Message: fmt.Sprintf("event kind %q is not declared", ev.Kind)}
	}

	reactions := c.rules.ReactionsFor(ev.Kind)
	if len(reactions) == 0 {
		c.logger.Debug("no reactions", "kind", ev.Kind, "source", ev.Source)
		return ir.Dispatch{}, nil
	}

	d := ir.Dispatch{
		Session:   c.session,
		Seq:       c.clock.Next(),
		Event:     ev,
		Mutations: []ir.Mutation{},
	}
	id, err := ir.EventID(d.Session, d.Seq, ev)
	if err != nil {
		return ir.Dispatch{}, fmt.Errorf("event id: %w", err)
	}
	d.ID = id

	var dispatchErr error
	for i, r := range reactions {
		muts, err := c.apply(r, ev.Payload)
		if err != nil {
			dispatchErr = &DispatchError{Event: ev, Reaction: r.ID, Applied: i, Err: err}
			c.logger.Error("dispatch aborted",
				"kind", ev.Kind,
				"source", ev.Source,
				"seq", d.Seq,
				"reaction", r.ID,
				"applied", i,
				"error", err,
			)
			break
		}
		d.Mutations = append(d.Mutations, muts...)
		c.logger.Debug("reaction applied", "kind", ev.Kind, "reaction", r.ID, "writes", len(muts))
	}
	if dispatchErr != nil {
		d.Err = dispatchErr.Error()
	}

	c.notify(d)
	return d, dispatchErr
}

// apply runs one reaction. Nothing is written unless every read and write
// resolves and Apply returns a state per write.
func (c *Coordinator) apply(r Reaction, payload ir.Value) ([]ir.Mutation, error) {
	for _, w := range r.Writes {
		if err := c.registry.checkTarget(r.ID, w); err != nil {
			return nil, err
		}
	}
	states, err := c.registry.Snapshot(r.Reads...)
	if err != nil {
		if ue, ok := err.(*UnknownFieldError); ok {
			ue.Reaction = r.ID
		}
		return nil, err
	}

	out, err := r.Apply(states, payload)
	if err != nil {
		return nil, err
	}
	if len(out) != len(r.Writes) {
		return nil, &ConfigurationError{
			Reaction: r.ID,
			Message:  fmt.Sprintf("apply returned %d states for %d writes", len(out), len(r.Writes)),
		}
	}

	muts := make([]ir.Mutation, len(r.Writes))
	for i, w := range r.Writes {
		muts[i] = c.registry.write(r.ID, w, out[i])
	}
	return muts, nil
}

func (c *Coordinator) notify(d ir.Dispatch) {
	for _, o := range c.observers {
		if err := o.ObserveDispatch(d); err != nil {
			c.logger.Warn("observer failed", "seq", d.Seq, "kind", d.Event.Kind, "error", err)
		}
	}
}
