package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string            `json:"session"`
	Form          string            `json:"form"`
	Rules         string            `json:"rules"` // "built-in" or "cue"
	Events        int               `json:"events"`
	Mutations     int               `json:"mutations"`
	Deterministic bool              `json:"deterministic"`
	Mismatches    []engine.Mismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled sessions and verify determinism",
		Long: `Replay journaled sessions to verify determinism.

Each session is rebuilt from the rules it was journaled with, its events are
re-emitted in seq order into the fresh session, and every resulting dispatch
is compared with the journal: same seq, same mutations in the same order,
same failure.

Exit codes:
  0 - All sessions are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, rules no longer compile, etc.)

Examples:
  formsync replay --db ./formsync.db
  formsync replay --db ./formsync.db --session 0190f6c4-...
  formsync replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := context.Background()

	st, err := store.Open(opts.database(opts.Database))
	if err != nil {
		return formatter.Fail(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err))
	}
	defer st.Close()

	var sessions []store.Session
	if opts.Session != "" {
		sess, err := st.ReadSession(ctx, opts.Session)
		if errors.Is(err, store.ErrSessionNotFound) {
			return formatter.Fail(ErrCodeNotFound, err.Error())
		}
		if err != nil {
			return formatter.Fail(ErrCodeStore, err.Error())
		}
		sessions = []store.Session{sess}
	} else {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return formatter.Fail(ErrCodeStore, fmt.Sprintf("failed to list sessions: %v", err))
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}

	for _, sess := range sessions {
		sessResult, err := replaySession(ctx, st, sess, opts.config(), logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
		}
		result.Sessions = append(result.Sessions, sessResult)
		if !sessResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.IsJSON() {
		var failure *CLIError
		if !result.AllDeterministic {
			failure = &CLIError{Code: "E_DETERMINISM", Message: "determinism verification failed"}
		}
		// Determinism failure = exit code 1
		return formatter.Result(result, failure, ExitFailure)
	}

	return outputReplayText(formatter, result)
}

// replaySession rebuilds sess from its journaled rules and re-emits its
// journaled events.
func replaySession(ctx context.Context, st *store.Store, sess store.Session, cfg *Config, logger *slog.Logger) (ReplaySessionResult, error) {
	rules, err := ParseRuleSet("journal:"+sess.ID, sess.Source, sess.Form)
	if err != nil {
		return ReplaySessionResult{}, fmt.Errorf("journaled rules: %w", err)
	}

	fresh, err := rules.Build(sessionConfig(sess.ID, cfg, logger))
	if err != nil {
		return ReplaySessionResult{}, fmt.Errorf("rebuild: %w", err)
	}

	recorded, err := st.ReadDispatches(ctx, sess.ID)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	replay, err := engine.Replay(ctx, fresh, recorded)
	if err != nil {
		return ReplaySessionResult{}, err
	}
	logger.Debug("session replayed",
		"session", sess.ID,
		"events", replay.Events,
		"mismatches", len(replay.Mismatches),
	)

	kind := "built-in"
	if !rules.Builtin() {
		kind = "cue"
	}
	return ReplaySessionResult{
		Session:       sess.ID,
		Form:          sess.Form,
		Rules:         kind,
		Events:        replay.Events,
		Mutations:     replay.Mutations,
		Deterministic: replay.Deterministic(),
		Mismatches:    replay.Mismatches,
	}, nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		fmt.Fprintf(w, "%s Session: %s (form %s, %s rules)\n", mark(s.Deterministic), s.Session, s.Form, s.Rules)
		fmt.Fprintf(w, "  Events: %d, mutations: %d\n", s.Events, s.Mutations)
		for _, m := range s.Mismatches {
			fmt.Fprintf(w, "  seq %d (%s): %s\n", m.Seq, m.Kind, m.Reason)
			if formatter.Verbose {
				fmt.Fprintln(w, "    expected:")
				writeDispatch(w, m.Expected)
				fmt.Fprintln(w, "    actual:")
				writeDispatch(w, m.Actual)
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
