package session

import (
	"fmt"
	"log/slog"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/ir"
)

// Config holds the optional collaborators of a session.
type Config struct {
	// ID is the session identifier. Empty means IDs.Generate().
	ID string
	// IDs generates the session ID when ID is empty. Nil means UUIDv7.
	IDs engine.SessionIDGenerator
	// Slots derives time-slot options. Nil means field.DefaultSlots().
	Slots field.SlotProvider
	// Logger is passed to the coordinator. Nil means slog.Default().
	Logger *slog.Logger
	// Clock resumes a journaled session. Nil starts at 0.
	Clock *engine.Clock
	// Observers receive every dispatch record.
	Observers []engine.Observer
}

// Session is one live form.
type Session struct {
	id     string
	form   ir.FormSpec
	reg    *engine.Registry
	coord  *engine.Coordinator
	logger *slog.Logger
	host   field.Emitter
}

// Build creates a session for form, dispatching through rules.
//
// Every field is created from its FieldSpec, registered, and bound to the
// coordinator under its declared Emits kind. A field emitting a kind the
// form does not declare is a ConfigurationError.
func Build(form ir.FormSpec, rules *engine.RuleTable, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := cfg.ID
	if id == "" {
		gen := cfg.IDs
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		id = gen.Generate()
	}
	slots := cfg.Slots
	if slots == nil {
		slots = field.DefaultSlots()
	}

	reg := engine.NewRegistry()
	bindables := make([]field.Bindable, 0, len(form.Fields))
	for _, fs := range form.Fields {
		if fs.Emits != "" && len(form.Kinds) > 0 && !form.HasKind(fs.Emits) {
			return nil, &engine.ConfigurationError{
				Field:   fs.ID,
				Message: fmt.Sprintf("emits undeclared kind %q", fs.Emits),
			}
		}
		f, err := field.New(fs, slots)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.ID, err)
		}
		if err := reg.Register(fs.ID, f); err != nil {
			return nil, err
		}
		if b, ok := f.(field.Bindable); ok && fs.Emits != "" {
			bindables = append(bindables, b)
		}
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSession(id),
		engine.WithClock(cfg.Clock),
	}
	for _, o := range cfg.Observers {
		opts = append(opts, engine.WithObserver(o))
	}
	coord, err := engine.New(reg, rules, opts...)
	if err != nil {
		return nil, err
	}

	s := &Session{id: id, form: form, reg: reg, coord: coord, logger: logger}
	for _, b := range bindables {
		fs, _ := form.Field(b.ID())
		b.Bind(coord, fs.Emits)
	}

	logger.Debug("session built",
		"session", id,
		"form", form.Name,
		"fields", reg.Len(),
		"reactions", rules.Len(),
		"bound", len(bindables),
	)
	return s, nil
}

// BuildFromSpecs builds the rule table from declarative reactions, then the
// session.
func BuildFromSpecs(form ir.FormSpec, reactions []ir.ReactionSpec, cfg Config) (*Session, error) {
	rules, err := engine.BuildRuleTable(form.Kinds, reactions)
	if err != nil {
		return nil, err
	}
	return Build(form, rules, cfg)
}

// Host queues every later Change on e, usually an engine.Loop whose
// dispatcher is this session. Change then checks the value and enqueues a
// change request; the Run goroutine stores it and dispatches, so field state
// is only ever touched from that goroutine.
func (s *Session) Host(e field.Emitter) {
	s.host = e
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Form returns the form declaration.
func (s *Session) Form() ir.FormSpec {
	return s.form
}

// Coordinator returns the session's coordinator.
func (s *Session) Coordinator() *engine.Coordinator {
	return s.coord
}

// Registry returns the session's field registry.
func (s *Session) Registry() *engine.Registry {
	return s.reg
}

// Change is the external trigger: it stores v on field id, which emits the
// field's bound event. A field with no bound kind just stores the value.
//
// A hosted session only enqueues the change; see Host. A change made while
// a dispatch is running fails with ReentrantDispatchError and leaves the
// field as it was.
func (s *Session) Change(id ir.FieldID, v ir.Value) error {
	if s.host == nil {
		return s.set(id, v)
	}
	if _, err := s.setter(id); err != nil {
		return err
	}
	fs, _ := s.form.Field(id)
	coerced, err := field.Coerce(id, fs.Type, v)
	if err != nil {
		return err
	}
	return s.host.Emit(ir.NewEvent(id, "", coerced))
}

func (s *Session) setter(id ir.FieldID) (field.Setter, error) {
	f, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	setter, ok := f.(field.Setter)
	if !ok {
		return nil, &engine.ConfigurationError{Field: id, Message: fmt.Sprintf("%T does not accept external changes", f)}
	}
	return setter, nil
}

func (s *Session) set(id ir.FieldID, v ir.Value) error {
	setter, err := s.setter(id)
	if err != nil {
		return err
	}
	if s.coord.Dispatching() {
		fs, _ := s.form.Field(id)
		return &engine.ReentrantDispatchError{Kind: fs.Emits, Active: s.coord.Active()}
	}
	return setter.Set(v)
}

// Emit dispatches ev as if its source had just changed. See EmitRecord.
//
// An event with no kind is a change request queued by a hosted Change: its
// payload goes through the source field's own Set, which emits the bound
// kind.
func (s *Session) Emit(ev ir.Event) error {
	if ev.Kind == "" {
		return s.set(ev.Source, ev.Payload)
	}
	_, err := s.EmitRecord(ev)
	return err
}

// EmitRecord stores ev.Payload on the source field without re-emitting,
// then dispatches ev. Used to replay journaled events and by scenarios that
// inject events directly. A source that is not registered is left alone,
// and nothing is restored for a kind the rules do not declare or while
// another dispatch is running.
func (s *Session) EmitRecord(ev ir.Event) (ir.Dispatch, error) {
	if !s.coord.Rules().Declares(ev.Kind) || s.coord.Dispatching() {
		return s.coord.EmitRecord(ev)
	}
	if f, err := s.reg.Get(ev.Source); err == nil {
		if r, ok := f.(field.Restorer); ok {
			if err := r.Restore(ev.Payload); err != nil {
				return ir.Dispatch{}, err
			}
		}
	}
	return s.coord.EmitRecord(ev)
}

// Field returns the field registered under id.
func (s *Session) Field(id ir.FieldID) (field.Field, error) {
	return s.reg.Get(id)
}

// State returns the observable state of field id.
func (s *Session) State(id ir.FieldID) (ir.FieldState, error) {
	states, err := s.reg.Snapshot(id)
	if err != nil {
		return ir.FieldState{}, err
	}
	return states[0], nil
}

// FieldState pairs a field ID with its state for ordered output.
type FieldState struct {
	ID ir.FieldID `json:"id"`
	ir.FieldState
}

// States returns every field's state in declaration order.
func (s *Session) States() []FieldState {
	ids := s.reg.IDs()
	states, err := s.reg.Snapshot(ids...)
	if err != nil {
		// Registry IDs always resolve.
		panic(err)
	}
	out := make([]FieldState, len(ids))
	for i, id := range ids {
		out[i] = FieldState{ID: id, FieldState: states[i]}
	}
	return out
}
