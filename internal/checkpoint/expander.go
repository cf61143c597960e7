package checkpoint

import (
	"context"
	"log"
	"time"
)

// Store is the subset of the repository the expander reads and writes
// through.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, cp Checkpoint) error
	UpdateWindow(ctx context.Context, id string, start, end, lastRecurrence time.Time) error
	ListRecurringTemplates(ctx context.Context) ([]Checkpoint, error)
}

// Expander owns all recurrence writes: creation-time pre-materialization of
// occurrence records and the rolling advancement of template windows. Read
// paths never mutate recurrence state.
type Expander struct {
	store Store
}

// NewExpander creates an expander over a checkpoint store.
func NewExpander(store Store) *Expander {
	return &Expander{store: store}
}

// Materialize pre-creates the planned occurrences for a recurring template.
// It is idempotent under concurrent invocation: deterministic child ids plus
// an existence check make the second run a no-op per period index. A failed
// write is logged and skipped without aborting the rest of the plan.
func (e *Expander) Materialize(ctx context.Context, cp Checkpoint, base time.Time) (int, error) {
	created := 0
	for _, child := range MaterializePlan(cp, base) {
		exists, err := e.store.Exists(ctx, child.ID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := e.store.Insert(ctx, child); err != nil {
			log.Printf("materialize %s failed: %v", child.ID, err)
			continue
		}
		created++
	}
	return created, nil
}

// RollPass advances every recurring template whose window has lapsed,
// honoring the per-template throttle. It returns how many templates were
// rolled. A single now snapshot is used for the whole pass.
func (e *Expander) RollPass(ctx context.Context, now time.Time) (int, error) {
	templates, err := e.store.ListRecurringTemplates(ctx)
	if err != nil {
		return 0, err
	}

	rolled := 0
	for _, cp := range templates {
		next, ok := RollForward(cp, now)
		if !ok {
			continue
		}
		if err := e.store.UpdateWindow(ctx, cp.ID, next.StartTime, next.EndTime, *next.LastRecurrence); err != nil {
			log.Printf("roll %s failed: %v", cp.ID, err)
			continue
		}
		rolled++
	}
	return rolled, nil
}
