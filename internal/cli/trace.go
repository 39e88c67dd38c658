package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/queryir"
	"github.com/roach88/formsync/internal/querysql"
	"github.com/roach88/formsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string // optional - filter to one event kind
	Field    string // optional - only dispatches that wrote this field
}

// TraceFilter narrows a trace. Zero values match everything.
type TraceFilter struct {
	Kind  ir.EventKind
	Field ir.FieldID
	// Seqs, when non-nil, lists the dispatches to keep.
	Seqs map[int64]bool
}

// ProvenanceEdge records that a reaction, triggered by an event kind,
// wrote one field attribute.
type ProvenanceEdge struct {
	Seq      int64        `json:"seq"`
	Kind     ir.EventKind `json:"kind"`
	Reaction string       `json:"reaction"`
	Target   string       `json:"target"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Dispatches int   `json:"dispatches"`
	Mutations  int   `json:"mutations"`
	Errors     int   `json:"errors"`
	LastSeq    int64 `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session    store.Session    `json:"session"`
	Timeline   []ir.Dispatch    `json:"timeline"`
	Provenance []ProvenanceEdge `json:"provenance"`
	Stats      TraceStats       `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled session's dispatch timeline",
		Long: `Show the journaled timeline of a session.

Each dispatch lists its event and the mutations its reactions applied, in
order. Without --session the journaled sessions are listed. --kind keeps
dispatches of one event kind; --field keeps dispatches whose reactions
wrote the field, and only those writes in the provenance.

The output includes:
- Timeline: dispatches in seq order
- Provenance: which reaction wrote which field attribute, per event kind
- Stats: summary statistics for the session

Examples:
  formsync trace --db ./formsync.db
  formsync trace --db ./formsync.db --session 0190f6c4-...
  formsync trace --session 0190f6c4-... --kind dateChanged --format json
  formsync trace --session 0190f6c4-... --field timeSlot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: list sessions)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().StringVar(&opts.Field, "field", "", "filter to dispatches that wrote a field")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := context.Background()

	st, err := store.Open(opts.database(opts.Database))
	if err != nil {
		return formatter.Fail(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err))
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, formatter, st)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, store.ErrSessionNotFound) {
		return formatter.Fail(ErrCodeNotFound, err.Error())
	}
	if err != nil {
		return formatter.Fail(ErrCodeStore, err.Error())
	}

	dispatches, err := st.ReadDispatches(ctx, opts.Session)
	if err != nil {
		return formatter.Fail(ErrCodeStore, err.Error())
	}

	filter := TraceFilter{Kind: ir.EventKind(opts.Kind), Field: ir.FieldID(opts.Field)}
	if opts.Field != "" {
		filter.Seqs, err = dispatchesWriting(ctx, st, opts.Session, opts.Field)
		if err != nil {
			return formatter.Fail(ErrCodeStore, err.Error())
		}
	}

	result := buildTrace(sess, dispatches, filter)

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, filter)
	return nil
}

// dispatchesWriting returns the seqs of the session's dispatches with at
// least one mutation of field.
func dispatchesWriting(ctx context.Context, st *store.Store, session, field string) (map[int64]bool, error) {
	query, args, err := querysql.NewSQLCompiler().Compile(queryir.Join{
		Left: queryir.Select{
			From:     "dispatches",
			Filter:   queryir.Equals{Field: "session_id", Value: ir.Text(session)},
			Bindings: map[string]string{"seq": "seq"},
		},
		Right: queryir.Select{
			From:   "mutations",
			Filter: queryir.Equals{Field: "field", Value: ir.Text(field)},
		},
		On: queryir.ColumnEquals{Left: "id", Right: "dispatch_id"},
	})
	if err != nil {
		return nil, err
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query writes of %s: %w", field, err)
	}
	defer rows.Close()

	seqs := map[int64]bool{}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan seq: %w", err)
		}
		seqs[seq] = true
	}
	return seqs, rows.Err()
}

// buildTrace filters the timeline and derives provenance and stats from
// what remains.
func buildTrace(sess store.Session, dispatches []ir.Dispatch, filter TraceFilter) TraceResult {
	result := TraceResult{
		Session:    sess,
		Timeline:   []ir.Dispatch{},
		Provenance: []ProvenanceEdge{},
	}
	for _, d := range dispatches {
		if filter.Kind != "" && d.Event.Kind != filter.Kind {
			continue
		}
		if filter.Seqs != nil && !filter.Seqs[d.Seq] {
			continue
		}
		result.Timeline = append(result.Timeline, d)
		result.Stats.Dispatches++
		result.Stats.Mutations += len(d.Mutations)
		if d.Err != "" {
			result.Stats.Errors++
		}
		result.Stats.LastSeq = d.Seq
		for _, m := range d.Mutations {
			if filter.Field != "" && m.Field != filter.Field {
				continue
			}
			result.Provenance = append(result.Provenance, ProvenanceEdge{
				Seq:      d.Seq,
				Kind:     d.Event.Kind,
				Reaction: m.Reaction,
				Target:   ir.Target{Field: m.Field, Attr: m.Attr}.String(),
			})
		}
	}
	return result
}

func listSessions(ctx context.Context, formatter *OutputFormatter, st *store.Store) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return formatter.Fail(ErrCodeStore, err.Error())
	}
	if formatter.IsJSON() {
		return formatter.Success(sessions)
	}

	w := formatter.Writer
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}
	fmt.Fprintf(w, "%d session(s):\n", len(sessions))
	for _, s := range sessions {
		rules := "built-in"
		if s.Source != "" {
			rules = "cue"
		}
		fmt.Fprintf(w, "  %s  form=%s rules=%s last_seq=%d\n", s.ID, s.Form, rules, s.LastSeq)
	}
	return nil
}

func outputTraceText(w io.Writer, result TraceResult, filter TraceFilter) {
	fmt.Fprintf(w, "Session: %s (form %s)\n", result.Session.ID, result.Session.Form)
	if filter.Kind != "" {
		fmt.Fprintf(w, "Filter: %s\n", filter.Kind)
	}
	if filter.Field != "" {
		fmt.Fprintf(w, "Field: %s\n", filter.Field)
	}
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No dispatches.")
		return
	}

	fmt.Fprintln(w, "Timeline:")
	for _, d := range result.Timeline {
		writeDispatch(w, d)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d dispatch(es), %d mutation(s), %d error(s)\n",
		result.Stats.Dispatches, result.Stats.Mutations, result.Stats.Errors)
}

// writeDispatch prints one dispatch and its mutations.
func writeDispatch(w io.Writer, d ir.Dispatch) {
	fmt.Fprintf(w, "  [%d] %s from %s = %s\n", d.Seq, d.Event.Kind, d.Event.Source, formatValue(d.Event.Payload))
	for _, m := range d.Mutations {
		fmt.Fprintf(w, "       %s: %s = %s\n", m.Reaction, ir.Target{Field: m.Field, Attr: m.Attr}, formatValue(m.Value))
	}
	if d.Err != "" {
		fmt.Fprintf(w, "       error: %s\n", d.Err)
	}
}
