// Package matching holds the read-side of the assignment engine: capacity
// accounting, skill scoring and ranked volunteer suggestions.
package matching

import "volunteer-coordination/internal/models"

// Ledger is a point-in-time view of an event's seats. It is computed from
// the event's assignment collection and holds nothing between calls.
type Ledger struct {
	Required    int
	ActiveCount int
}

// LedgerFor computes the capacity view of e.
func LedgerFor(e *models.Event) Ledger {
	active := 0
	for _, a := range e.AssignedVolunteers {
		if a.IsActive() {
			active++
		}
	}
	return Ledger{Required: e.RequiredVolunteers, ActiveCount: active}
}

// Remaining may be negative if the requirement was lowered after seats were taken.
func (l Ledger) Remaining() int {
	return l.Required - l.ActiveCount
}

func (l Ledger) IsFull() bool {
	return l.Remaining() <= 0
}
