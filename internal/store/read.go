package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// ErrSessionNotFound is returned when a session ID has no header row.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns one session header with its LastSeq.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.form, s.source, COALESCE(MAX(d.seq), 0)
		FROM sessions s
		LEFT JOIN dispatches d ON d.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id
	`, id)

	var sess Session
	if err := row.Scan(&sess.ID, &sess.Form, &sess.Source, &sess.LastSeq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session header ordered by ID.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.form, s.source, COALESCE(MAX(d.seq), 0)
		FROM sessions s
		LEFT JOIN dispatches d ON d.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Form, &sess.Source, &sess.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LastSeq returns the highest seq journaled for a session, or 0.
// Used to resume the logical clock of a reopened session.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM dispatches WHERE session_id = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ReadDispatches returns every dispatch of a session with its mutations.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the session has no dispatches.
func (s *Store) ReadDispatches(ctx context.Context, session string) ([]ir.Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, source, kind, payload, error
		FROM dispatches
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []ir.Dispatch{}
	index := make(map[string]int)
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		index[d.ID] = len(dispatches)
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}

	if err := s.attachMutations(ctx, session, dispatches, index); err != nil {
		return nil, err
	}
	return dispatches, nil
}

// attachMutations loads the mutations of a session's dispatches in one query.
func (s *Store) attachMutations(ctx context.Context, session string, dispatches []ir.Dispatch, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.dispatch_id, m.reaction, m.field, m.attr, m.value
		FROM mutations m
		JOIN dispatches d ON m.dispatch_id = d.id
		WHERE d.session_id = ?
		ORDER BY d.seq ASC, m.idx ASC
	`, session)
	if err != nil {
		return fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dispatchID, reaction, fieldID, attr, value string
		)
		if err := rows.Scan(&dispatchID, &reaction, &fieldID, &attr, &value); err != nil {
			return fmt.Errorf("scan mutation: %w", err)
		}
		v, err := unmarshalValue(value)
		if err != nil {
			return fmt.Errorf("mutation of %s: %w", dispatchID, err)
		}
		i, ok := index[dispatchID]
		if !ok {
			continue
		}
		dispatches[i].Mutations = append(dispatches[i].Mutations, ir.Mutation{
			Reaction: reaction,
			Field:    ir.FieldID(fieldID),
			Attr:     ir.Attr(attr),
			Value:    v,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate mutations: %w", err)
	}
	return nil
}

// ReadEvents returns a session's events in journal order, for replay.
func (s *Store) ReadEvents(ctx context.Context, session string) ([]ir.Event, error) {
	dispatches, err := s.ReadDispatches(ctx, session)
	if err != nil {
		return nil, err
	}
	events := make([]ir.Event, len(dispatches))
	for i, d := range dispatches {
		events[i] = d.Event
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row rowScanner) (ir.Dispatch, error) {
	var (
		d                     ir.Dispatch
		source, kind, payload string
	)
	if err := row.Scan(&d.ID, &d.Session, &d.Seq, &source, &kind, &payload, &d.Err); err != nil {
		return ir.Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}
	v, err := unmarshalValue(payload)
	if err != nil {
		return ir.Dispatch{}, fmt.Errorf("dispatch %s payload: %w", d.ID, err)
	}
	d.Event = ir.NewEvent(ir.FieldID(source), ir.EventKind(kind), v)
	d.Mutations = []ir.Mutation{}
	return d, nil
}
