package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryRecord is one audit entry of a volunteer's participation in an event.
type HistoryRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	VolunteerID   primitive.ObjectID `bson:"volunteer_id" json:"volunteerId"`
	EventID       primitive.ObjectID `bson:"event_id" json:"eventId"`
	VolunteerName string             `bson:"volunteer_name" json:"volunteerName"`
	EventName     string             `bson:"event_name" json:"eventName"`
	EventDate     time.Time          `bson:"event_date" json:"eventDate"`
	AssignedDate  time.Time          `bson:"assigned_date" json:"assignedDate"`
	Status        string             `bson:"status" json:"status"`
	HoursWorked   float64            `bson:"hours_worked" json:"hoursWorked"`
	Feedback      string             `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Rating        *int               `bson:"rating,omitempty" json:"rating,omitempty"`
	Reason        string             `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

const (
	HistoryAssigned  = "Assigned"
	HistoryConfirmed = "Confirmed"
	HistoryCompleted = "Completed"
	HistoryCancelled = "Cancelled"
	HistoryNoShow    = "No-Show"
)

func IsValidHistoryStatus(s string) bool {
	switch s {
	case HistoryAssigned, HistoryConfirmed, HistoryCompleted, HistoryCancelled, HistoryNoShow:
		return true
	}
	return false
}

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	VolunteerID *primitive.ObjectID
	EventID     *primitive.ObjectID
	Status      string
	From        *time.Time
	To          *time.Time
	Limit       int
}

// HistoryUpdate is an administrative change to an existing record.
type HistoryUpdate struct {
	Status      string
	HoursWorked *float64
	Feedback    *string
	Rating      *int
}

// Apply mutates r and reports whether anything changed.
func (u HistoryUpdate) Apply(r *HistoryRecord) bool {
	changed := false
	if u.Status != "" && r.Status != u.Status {
		r.Status = u.Status
		changed = true
	}
	if u.HoursWorked != nil && r.HoursWorked != *u.HoursWorked {
		r.HoursWorked = *u.HoursWorked
		changed = true
	}
	if u.Feedback != nil && r.Feedback != *u.Feedback {
		r.Feedback = *u.Feedback
		changed = true
	}
	if u.Rating != nil && (r.Rating == nil || *r.Rating != *u.Rating) {
		rating := *u.Rating
		r.Rating = &rating
		changed = true
	}
	return changed
}

// VolunteerStats aggregates one volunteer's history.
type VolunteerStats struct {
	TotalEvents     int     `json:"totalEvents"`
	CompletedEvents int     `json:"completedEvents"`
	TotalHours      float64 `json:"totalHours"`
	AverageRating   float64 `json:"averageRating"`
}

// OverallStats aggregates all history for the admin dashboard.
type OverallStats struct {
	TotalRecords    int     `json:"totalRecords"`
	CompletedEvents int     `json:"completedEvents"`
	TotalHours      float64 `json:"totalHours"`
	CompletionRate  float64 `json:"completionRate"`
}

// EventStats aggregates event counts for the admin dashboard.
type EventStats struct {
	TotalEvents             int `json:"totalEvents"`
	ActiveEvents            int `json:"activeEvents"`
	CompletedEvents         int `json:"completedEvents"`
	TotalVolunteersAssigned int `json:"totalVolunteersAssigned"`
}
