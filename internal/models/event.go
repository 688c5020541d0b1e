// internal/models/event.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Location    string             `bson:"location" json:"location"`
	Date        time.Time          `bson:"date" json:"date"`

	// Требования
	Skills             []string `bson:"skills" json:"skills"`
	Urgency            string   `bson:"urgency" json:"urgency"`
	RequiredVolunteers int      `bson:"required_volunteers" json:"requiredVolunteers"`

	AssignedVolunteers []Assignment `bson:"assigned_volunteers" json:"assignedVolunteers"`

	Status    string             `bson:"status" json:"status"`
	CreatedBy primitive.ObjectID `bson:"created_by" json:"createdBy"`

	// Version is bumped on every write; stores reject writes carrying a stale version.
	Version int64 `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Assignment links one volunteer to an event. Cancelled assignments are kept.
type Assignment struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	VolunteerID   primitive.ObjectID `bson:"volunteer_id" json:"volunteerId"`
	VolunteerName string             `bson:"volunteer_name" json:"volunteerName"`
	AssignedAt    time.Time          `bson:"assigned_at" json:"assignedAt"`
	Status        string             `bson:"status" json:"status"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Статусы событий
const (
	EventStatusActive    = "Active"
	EventStatusCompleted = "Completed"
	EventStatusCancelled = "Cancelled"
)

// Уровни срочности
const (
	UrgencyLow    = "Low"
	UrgencyMedium = "Medium"
	UrgencyHigh   = "High"
)

// Статусы назначений
const (
	AssignmentAssigned  = "Assigned"
	AssignmentConfirmed = "Confirmed"
	AssignmentCompleted = "Completed"
	AssignmentCancelled = "Cancelled"
)

func IsValidEventStatus(s string) bool {
	switch s {
	case EventStatusActive, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

func IsValidAssignmentStatus(s string) bool {
	switch s {
	case AssignmentAssigned, AssignmentConfirmed, AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return false
}

// IsActive reports whether the assignment still holds a seat.
func (a Assignment) IsActive() bool {
	return a.Status != AssignmentCancelled
}

// AcceptsVolunteers reports whether new assignments may be added.
func (e *Event) AcceptsVolunteers() bool {
	return e.Status == EventStatusActive
}

// ActiveAssignment returns the index of the volunteer's non-cancelled
// assignment, or -1.
func (e *Event) ActiveAssignment(volunteerID primitive.ObjectID) int {
	for i, a := range e.AssignedVolunteers {
		if a.VolunteerID == volunteerID && a.IsActive() {
			return i
		}
	}
	return -1
}

// LatestAssignment returns the index of the most recent assignment for the
// volunteer regardless of status, or -1.
func (e *Event) LatestAssignment(volunteerID primitive.ObjectID) int {
	for i := len(e.AssignedVolunteers) - 1; i >= 0; i-- {
		if e.AssignedVolunteers[i].VolunteerID == volunteerID {
			return i
		}
	}
	return -1
}

func (e *Event) IsUpcoming() bool {
	return time.Now().Before(e.Date)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (e *Event) Clone() *Event {
	c := *e
	c.Skills = append([]string(nil), e.Skills...)
	c.AssignedVolunteers = append([]Assignment(nil), e.AssignedVolunteers...)
	return &c
}
