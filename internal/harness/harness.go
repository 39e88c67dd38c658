package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/orderform"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/store"
)

// DefaultSession is the session ID used when a scenario names none.
const DefaultSession = "test-session-default"

// Harness is the test execution engine.
// It runs one scenario against a live session journaled to SQLite.
type Harness struct {
	store   *store.Store
	session *session.Session
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Build the session from the built-in rules or the CUE file
//  3. Apply each step, checking expect_error
//  4. Read the trace back from the journal
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	sessionID := scenario.Session
	if sessionID == "" {
		sessionID = DefaultSession
	}

	form, build, source, err := loadRules(scenario)
	if err != nil {
		return nil, err
	}

	journal := store.NewJournal(ctx, st, logger)
	if err := journal.Begin(store.Session{ID: sessionID, Form: form.Name, Source: source}); err != nil {
		return nil, fmt.Errorf("failed to begin journal: %w", err)
	}

	sess, err := build(session.Config{
		ID:        sessionID,
		Logger:    logger,
		Observers: []engine.Observer{journal},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build session: %w", err)
	}

	h := &Harness{store: st, session: sess, logger: logger}

	result := NewResult()
	h.executeSteps(scenario.Steps, result)

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

type sessionBuilder func(session.Config) (*session.Session, error)

// loadRules resolves the scenario's rules into a form and a session
// builder. source is the CUE text, empty for the built-in rules.
func loadRules(scenario *Scenario) (ir.FormSpec, sessionBuilder, string, error) {
	if scenario.Rules == RulesOrder {
		return orderform.Form(), orderform.New, "", nil
	}

	data, err := os.ReadFile(scenario.Rules)
	if err != nil {
		return ir.FormSpec{}, nil, "", fmt.Errorf("failed to read rules: %w", err)
	}
	res, errs := compiler.CompileString(scenario.Rules, string(data))
	if len(errs) > 0 {
		return ir.FormSpec{}, nil, "", fmt.Errorf("failed to compile rules: %w", errors.Join(errs...))
	}
	form, err := res.Form(scenario.Form)
	if err != nil {
		return ir.FormSpec{}, nil, "", err
	}
	if verrs := compiler.Validate(form, res.Reactions); len(verrs) > 0 {
		return ir.FormSpec{}, nil, "", fmt.Errorf("invalid rules: %s (and %d more)", verrs[0].Error(), len(verrs)-1)
	}

	build := func(cfg session.Config) (*session.Session, error) {
		return session.BuildFromSpecs(form, res.Reactions, cfg)
	}
	return form, build, string(data), nil
}

// executeSteps applies every step. A step failing differently than
// expected is recorded on result; later steps still run.
func (h *Harness) executeSteps(steps []Step, result *Result) {
	for i, step := range steps {
		err := h.apply(step)
		if msg := checkStepError(step, err); msg != "" {
			result.AddError(fmt.Sprintf("step %d: %s", i, msg))
		}

		h.logger.Info("step completed",
			"step", i,
			"change", step.Change,
			"emit", step.Emit,
			"error", err,
		)
	}
}

func (h *Harness) apply(step Step) error {
	v, err := ir.FromNative(step.Value)
	if err != nil {
		return &field.ValueError{Field: ir.FieldID(step.Change + step.Source), Message: err.Error()}
	}
	if step.Change != "" {
		return h.session.Change(ir.FieldID(step.Change), v)
	}
	return h.session.Emit(ir.NewEvent(ir.FieldID(step.Source), ir.EventKind(step.Emit), v))
}

// checkStepError returns a failure message, or "" when err matches the
// step's expectation.
func checkStepError(step Step, err error) string {
	switch {
	case step.ExpectError == "" && err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case step.ExpectError != "" && err == nil:
		return fmt.Sprintf("expected %s error, got none", step.ExpectError)
	case err == nil:
		return ""
	}
	if step.ExpectError == ErrorAny {
		return ""
	}
	if class := ErrorClass(err); class != step.ExpectError {
		return fmt.Sprintf("expected %s error, got %s: %v", step.ExpectError, class, err)
	}
	return ""
}

// ErrorClass maps an error to its expect_error class.
func ErrorClass(err error) string {
	var ve *field.ValueError
	switch {
	case engine.IsReentrant(err):
		return ErrorReentrant
	case engine.IsUnknownField(err):
		return ErrorUnknownField
	case engine.IsConfiguration(err):
		return ErrorConfiguration
	case errors.As(err, &ve):
		return ErrorValue
	default:
		return ErrorDispatch
	}
}

// collect reads the journal back into result and snapshots field states.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	dispatches, err := h.store.ReadDispatches(ctx, h.session.ID())
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, d := range dispatches {
		result.AddDispatch(d)
	}

	for _, st := range h.session.States() {
		reloads := 0
		if f, err := h.session.Field(st.ID); err == nil {
			if rc, ok := f.(interface{ ReloadCount() int }); ok {
				reloads = rc.ReloadCount()
			}
		}
		result.AddState(st, reloads)
	}
	return nil
}
