package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/formsync/internal/ir"
)

// Journal appends every dispatch it observes to a Store.
// It satisfies engine.Observer, so a session journals by registering it.
type Journal struct {
	ctx    context.Context
	store  *Store
	logger *slog.Logger
}

// NewJournal creates a journal writing through s. ctx bounds every write.
func NewJournal(ctx context.Context, s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{ctx: ctx, store: s, logger: logger}
}

// Begin writes the session header. Call once before the first dispatch.
func (j *Journal) Begin(sess Session) error {
	return j.store.WriteSession(j.ctx, sess)
}

// ObserveDispatch writes d and its mutations.
func (j *Journal) ObserveDispatch(d ir.Dispatch) error {
	inserted, err := j.store.WriteDispatch(j.ctx, d)
	if err != nil {
		return fmt.Errorf("journal seq %d: %w", d.Seq, err)
	}
	if !inserted {
		j.logger.Debug("dispatch already journaled", "session", d.Session, "seq", d.Seq, "id", d.ID)
	}
	return nil
}
