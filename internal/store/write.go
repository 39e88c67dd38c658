package store

import (
	"context"
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// Session is a journaled session header.
type Session struct {
	ID   string `json:"id"`
	Form string `json:"form"`
	// Source is the rule declaration the session was built from: CUE text,
	// or empty for built-in Go rules.
	Source string `json:"source,omitempty"`
	// LastSeq is the highest journaled seq. Populated by reads only.
	LastSeq int64 `json:"last_seq"`
}

// WriteSession inserts a session header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - reopening a session is
// not an error.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("write session: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, form, source)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Form, sess.Source)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteDispatch inserts a dispatch and its mutations in one transaction.
// Returns whether a new record was inserted.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: a dispatch already in the
// journal is left untouched and inserted=false. The session referenced by
// d.Session must exist (foreign key constraint).
func (s *Store) WriteDispatch(ctx context.Context, d ir.Dispatch) (inserted bool, err error) {
	payload, err := marshalValue(d.Event.Payload)
	if err != nil {
		return false, fmt.Errorf("write dispatch: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write dispatch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, session_id, seq, source, kind, payload, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.Session,
		d.Seq,
		string(d.Event.Source),
		string(d.Event.Kind),
		payload,
		d.Err,
	)
	if err != nil {
		return false, fmt.Errorf("write dispatch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write dispatch: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	for i, m := range d.Mutations {
		value, err := marshalValue(m.Value)
		if err != nil {
			return false, fmt.Errorf("write dispatch: mutation %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mutations
			(dispatch_id, idx, reaction, field, attr, value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, i, m.Reaction, string(m.Field), string(m.Attr), value)
		if err != nil {
			return false, fmt.Errorf("write dispatch: mutation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write dispatch: commit: %w", err)
	}
	return true, nil
}
