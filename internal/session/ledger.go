package session

import (
	"context"
	"fmt"

	"rollcall/internal/store"
)

const subjectsCollection = "subjects"

// Ledger maintains the per-subject usage counters: one document per subject,
// nested classGroup -> {lect,lab,tut} -> count.
type Ledger struct {
	store store.Store
}

// NewLedger creates a ledger over the given store.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Increment bumps the (classGroup, type) counter by one for every class
// group of the ended session in a single atomic store call. When the
// subject document does not exist yet it is created with the other two
// type counters of each class group initialized to 0.
func (l *Ledger) Increment(ctx context.Context, d *Descriptor) error {
	deltas := make(map[string]int64, len(d.ClassGroups))
	var zeros []string
	for _, cg := range d.ClassGroups {
		deltas[cg+"."+string(d.Type)] = 1
		for _, t := range Types {
			if t != d.Type {
				zeros = append(zeros, cg+"."+string(t))
			}
		}
	}
	if err := l.store.Increment(ctx, subjectsCollection, d.Subject, deltas, zeros); err != nil {
		return fmt.Errorf("ledger %s: %w", d.Subject, err)
	}
	return nil
}
