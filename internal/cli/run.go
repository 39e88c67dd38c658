package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/harness"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Rules    string
	Form     string
	Session  string
	Input    string

	// IDs allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.SessionIDGenerator
}

// RejectedCommand reports a command the session refused.
type RejectedCommand struct {
	Index   int     `json:"index"`
	Command Command `json:"command"`
	Class   string  `json:"class"`
	Error   string  `json:"error"`
}

// RunResult holds the outcome of a run.
type RunResult struct {
	Session    string               `json:"session"`
	Form       string               `json:"form"`
	Resumed    int                  `json:"resumed"`
	Applied    int                  `json:"applied"`
	Dispatches []ir.Dispatch        `json:"dispatches"`
	States     []session.FieldState `json:"states"`
	Rejected   []RejectedCommand    `json:"rejected,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply field changes to a journaled session",
		Long: `Apply a list of field changes to a form session and journal every
dispatch to SQLite.

Input is YAML (a list of commands per document) or, for .jsonl/.ndjson
files, one JSON command per line:

  - change: date
    value: "2026-10-20"
  - change: pickup
    value: true
  - emit: dateChanged
    source: date
    value: "2026-10-21"

Without --rules the built-in order form is used. With --session naming a
journaled session, the session is rebuilt from the rules it was journaled
with, its history is replayed and verified, and the new commands continue
it. Only dispatched events are journaled: a resumed session gets back the
values of fields that emit an event (date, recipient and pickup in the
order form), while fields that emit nothing (timeSlot, name, phone) start
again from their initial value and must be changed again.

Exit codes:
  0 - Every command was applied
  1 - One or more commands were rejected, or the journal diverged
  2 - Command error (bad rules, unreadable input, database error)

Examples:
  formsync run --input changes.yaml
  formsync run --db ./formsync.db --rules ./rules/order.cue --input changes.jsonl
  formsync run --session 0190f6c4-... --input more.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "CUE rules file (default: built-in order form)")
	cmd.Flags().StringVar(&opts.Form, "form", "", "form name when the rules declare several")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to create or resume")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "commands file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	commands, err := ReadCommandsFile(opts.Input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ErrCodeInput, err.Error())
	}

	dbPath := opts.database(opts.Database)
	logger.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return formatter.Fail(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	rules, sessionID, resuming, err := resolveSession(ctx, opts, st, logger)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return formatter.Fail(loadErr.Code, loadErr.Message)
		}
		return formatter.Fail(ErrCodeStore, err.Error())
	}

	journal := store.NewJournal(ctx, st, logger)
	if err := journal.Begin(store.Session{ID: sessionID, Form: rules.Form.Name, Source: rules.Source}); err != nil {
		return formatter.Fail(ErrCodeStore, err.Error())
	}

	// Dispatches replayed from the journal are not reported as new.
	var (
		fresh []ir.Dispatch
		live  bool
	)
	collect := engine.ObserverFunc(func(d ir.Dispatch) error {
		if live {
			fresh = append(fresh, d)
		}
		return nil
	})

	sess, err := rules.Build(sessionConfig(sessionID, opts.config(), logger, journal, collect))
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, fmt.Sprintf("failed to build session: %v", err))
	}

	result := RunResult{Session: sessionID, Form: rules.Form.Name}

	if resuming {
		recorded, err := st.ReadDispatches(ctx, sessionID)
		if err != nil {
			return formatter.Fail(ErrCodeStore, err.Error())
		}
		replay, err := engine.Replay(ctx, sess, recorded)
		if err != nil {
			return WrapExitError(ExitCommandError, "replay interrupted", err)
		}
		if !replay.Deterministic() {
			m := replay.Mismatches[0]
			return WrapExitError(ExitFailure,
				fmt.Sprintf("journal for session %s diverges at seq %d", sessionID, m.Seq),
				errors.New(m.Reason))
		}
		result.Resumed = replay.Events
		logger.Info("session resumed", "session", sessionID, "dispatches", replay.Events)
		if silent := silentFields(rules.Form); len(silent) > 0 {
			logger.Warn("values of fields that emit no event are not journaled", "session", sessionID, "fields", silent)
		}
	}

	live = true
	for i, c := range commands {
		if err := c.Apply(sess); err != nil {
			logger.Warn("command rejected", "index", i, "command", c.String(), "error", err)
			result.Rejected = append(result.Rejected, RejectedCommand{
				Index:   i,
				Command: c,
				Class:   harness.ErrorClass(err),
				Error:   err.Error(),
			})
			continue
		}
		result.Applied++
	}

	result.Dispatches = fresh
	if result.Dispatches == nil {
		result.Dispatches = []ir.Dispatch{}
	}
	result.States = sess.States()

	return outputRun(formatter, result, len(commands))
}

// resolveSession picks the rules and ID for this run. A journaled session
// keeps the rules it was created with.
func resolveSession(ctx context.Context, opts *RunOptions, st *store.Store, logger *slog.Logger) (*RuleSet, string, bool, error) {
	if opts.Session != "" {
		existing, err := st.ReadSession(ctx, opts.Session)
		switch {
		case err == nil:
			if opts.Rules != "" {
				logger.Warn("ignoring --rules for journaled session", "session", existing.ID)
			}
			rules, err := ParseRuleSet("journal:"+existing.ID, existing.Source, existing.Form)
			return rules, existing.ID, true, err
		case !errors.Is(err, store.ErrSessionNotFound):
			return nil, "", false, err
		}
	}

	rules, err := LoadRuleSet(opts.Rules, opts.Form)
	if err != nil {
		return nil, "", false, err
	}
	id := opts.Session
	if id == "" {
		gen := opts.IDs
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		id = gen.Generate()
	}
	return rules, id, false, nil
}

// sessionConfig assembles the collaborators shared by run and replay.
func sessionConfig(id string, cfg *Config, logger *slog.Logger, observers ...engine.Observer) session.Config {
	return session.Config{
		ID:        id,
		Slots:     slotProvider(cfg),
		Logger:    logger,
		Observers: observers,
	}
}

// slotProvider memoizes the calendar when the config asks for it.
func slotProvider(cfg *Config) field.SlotProvider {
	if cfg.SlotCacheTTL <= 0 {
		return field.DefaultSlots()
	}
	return field.NewCachedSlots(field.DefaultSlots(), cfg.SlotCacheTTL)
}

func outputRun(formatter *OutputFormatter, result RunResult, total int) error {
	var failure *CLIError
	if len(result.Rejected) > 0 {
		failure = &CLIError{
			Code:    "E_REJECTED",
			Message: fmt.Sprintf("%d of %d command(s) rejected", len(result.Rejected), total),
		}
	}

	if formatter.IsJSON() {
		return formatter.Result(result, failure, ExitFailure)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Session: %s (form %s)\n", result.Session, result.Form)
	if result.Resumed > 0 {
		fmt.Fprintf(w, "Resumed %d journaled dispatch(es)\n", result.Resumed)
	}
	fmt.Fprintf(w, "Applied %d of %d command(s), %d dispatch(es)\n", result.Applied, total, len(result.Dispatches))

	if len(result.Dispatches) > 0 {
		fmt.Fprintln(w)
		for _, d := range result.Dispatches {
			writeDispatch(w, d)
		}
	}

	fmt.Fprintln(w)
	writeStates(w, result.States)

	if failure == nil {
		return nil
	}
	fmt.Fprintln(w)
	for _, r := range result.Rejected {
		fmt.Fprintf(w, "✗ command %d (%s): %s: %s\n", r.Index, r.Command, r.Class, r.Error)
	}
	return NewExitError(ExitFailure, failure.Message)
}

// writeStates prints the field table.
func writeStates(w io.Writer, states []session.FieldState) {
	fmt.Fprintln(w, "Fields:")
	for _, s := range states {
		fmt.Fprintf(w, "  %-10s %-14v enabled=%-5t required=%t\n",
			s.ID, formatValue(s.Value), s.Enabled, s.Required)
	}
}

// formatValue renders a value for text output. Null prints as "-".
func formatValue(v ir.Value) string {
	switch val := ir.OrNull(v).(type) {
	case ir.Null:
		return "-"
	case ir.Text:
		return fmt.Sprintf("%q", string(val))
	default:
		return fmt.Sprint(ir.ToNative(val))
	}
}

// silentFields lists the fields whose values a resumed session cannot
// restore, because changing them dispatches nothing.
func silentFields(form ir.FormSpec) []ir.FieldID {
	var out []ir.FieldID
	for _, f := range form.Fields {
		if f.Emits == "" {
			out = append(out, f.ID)
		}
	}
	return out
}
