package assignment

import "volunteer-coordination/internal/models"

var assignmentTransitions = map[string][]string{
	models.AssignmentAssigned:  {models.AssignmentConfirmed, models.AssignmentCompleted, models.AssignmentCancelled},
	models.AssignmentConfirmed: {models.AssignmentCompleted, models.AssignmentCancelled},
}

// CanTransition reports whether an assignment may move from one status to
// another. Staying in the same status is always allowed. Completed and
// Cancelled are terminal.
func CanTransition(from, to string) bool {
	if from == to {
		return models.IsValidAssignmentStatus(from)
	}
	for _, next := range assignmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var eventTransitions = map[string][]string{
	models.EventStatusActive: {models.EventStatusCompleted, models.EventStatusCancelled},
}

// CanTransitionEvent reports whether an event lifecycle status change is
// allowed. Completed and Cancelled events stay that way.
func CanTransitionEvent(from, to string) bool {
	if from == to {
		return models.IsValidEventStatus(from)
	}
	for _, next := range eventTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
