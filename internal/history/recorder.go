// Package history keeps the audit trail of volunteer participation.
package history

import (
	"bytes"
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultOwnLimit = 50
	defaultAllLimit = 100
	maxLimit        = 500
)

type Recorder struct {
	store storage.HistoryStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewRecorder(store storage.HistoryStore, log zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.With().Str("component", "history").Logger(),
		now:   time.Now,
	}
}

// Snapshot is what a record copies from the event and the assignment.
type Snapshot struct {
	// ID is optional. New assignments use the assignment id, so a record
	// that already exists for the assignment is never appended twice.
	ID            primitive.ObjectID
	VolunteerID   primitive.ObjectID
	EventID       primitive.ObjectID
	VolunteerName string
	EventName     string
	EventDate     time.Time
	AssignedDate  time.Time
	Status        string
	Reason        string
	HoursWorked   float64
}

// Record appends a history record. A snapshot identical to the pair's
// latest record is skipped, so redelivered domain events append once.
func (r *Recorder) Record(ctx context.Context, s Snapshot) (*models.HistoryRecord, error) {
	latest, err := r.store.LatestHistory(ctx, s.VolunteerID, s.EventID)
	switch {
	case err == nil:
		if latest.Status == s.Status && sameInstant(latest.AssignedDate, s.AssignedDate) {
			return latest, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.From(err)
	}

	now := r.now()
	record := &models.HistoryRecord{
		ID:            s.ID,
		VolunteerID:   s.VolunteerID,
		EventID:       s.EventID,
		VolunteerName: s.VolunteerName,
		EventName:     s.EventName,
		EventDate:     s.EventDate,
		AssignedDate:  s.AssignedDate,
		Status:        s.Status,
		Reason:        s.Reason,
		HoursWorked:   s.HoursWorked,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if record.AssignedDate.IsZero() {
		record.AssignedDate = now
	}
	if err := r.store.CreateHistory(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			existing, err := r.store.LatestHistory(ctx, s.VolunteerID, s.EventID)
			if err != nil {
				return nil, apperrors.From(err)
			}
			return existing, nil
		}
		return nil, apperrors.From(err)
	}

	r.log.Debug().
		Str("volunteer_id", s.VolunteerID.Hex()).
		Str("event_id", s.EventID.Hex()).
		Str("status", s.Status).
		Msg("History recorded")
	return record, nil
}

// sameInstant compares at millisecond precision, the resolution every store keeps.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

// HandleEvent appends Assigned records for new assignments and Cancelled
// records for cancellations that carry a reason.
func (r *Recorder) HandleEvent(ctx context.Context, e events.Event) error {
	s := Snapshot{
		VolunteerID:   e.VolunteerID,
		EventID:       e.EventID,
		VolunteerName: e.VolunteerName,
		EventName:     e.EventTitle,
		EventDate:     e.EventDate,
		AssignedDate:  e.AssignedAt,
	}

	switch e.Type {
	case events.AssignmentCreated:
		s.ID = e.AssignmentID
		s.Status = models.HistoryAssigned
	case events.AssignmentCancelled:
		if e.Reason == "" {
			return nil
		}
		s.Status = models.HistoryCancelled
		s.Reason = e.Reason
	default:
		// Status changes are written by the assignment service itself.
		return nil
	}

	_, err := r.Record(ctx, s)
	return err
}

// ListOwn returns the volunteer's records, most recent event first.
func (r *Recorder) ListOwn(ctx context.Context, volunteerID primitive.ObjectID, limit int) ([]models.HistoryRecord, error) {
	return r.list(ctx, models.HistoryFilter{
		VolunteerID: &volunteerID,
		Limit:       clampLimit(limit, defaultOwnLimit),
	})
}

// ListAll is the admin view. Status and the event date range are optional.
func (r *Recorder) ListAll(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	if filter.Status != "" && !models.IsValidHistoryStatus(filter.Status) {
		return nil, apperrors.ErrInvalidStatus
	}
	filter.Limit = clampLimit(filter.Limit, defaultAllLimit)
	return r.list(ctx, filter)
}

// ForEvent returns every record of the event in assignment order.
func (r *Recorder) ForEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.HistoryRecord, error) {
	records, err := r.list(ctx, models.HistoryFilter{EventID: &eventID})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b models.HistoryRecord) int {
		if c := a.AssignedDate.Compare(b.AssignedDate); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return records, nil
}

func (r *Recorder) list(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	records, err := r.store.ListHistory(ctx, filter)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	return records, nil
}

// VolunteerStats aggregates one volunteer's history. The average rating is
// taken over rated records only.
func (r *Recorder) VolunteerStats(ctx context.Context, volunteerID primitive.ObjectID) (models.VolunteerStats, error) {
	var stats models.VolunteerStats
	records, err := r.list(ctx, models.HistoryFilter{VolunteerID: &volunteerID})
	if err != nil {
		return stats, err
	}

	ratingSum, rated := 0, 0
	for _, rec := range records {
		stats.TotalEvents++
		if rec.Status == models.HistoryCompleted {
			stats.CompletedEvents++
		}
		stats.TotalHours += rec.HoursWorked
		if rec.Rating != nil {
			ratingSum += *rec.Rating
			rated++
		}
	}
	if rated > 0 {
		stats.AverageRating = float64(ratingSum) / float64(rated)
	}
	return stats, nil
}

// OverallStats is the admin dashboard summary. CompletionRate is a
// percentage with one decimal.
func (r *Recorder) OverallStats(ctx context.Context) (models.OverallStats, error) {
	var stats models.OverallStats
	records, err := r.list(ctx, models.HistoryFilter{})
	if err != nil {
		return stats, err
	}

	for _, rec := range records {
		stats.TotalRecords++
		if rec.Status == models.HistoryCompleted {
			stats.CompletedEvents++
		}
		stats.TotalHours += rec.HoursWorked
	}
	if stats.TotalRecords > 0 {
		rate := float64(stats.CompletedEvents) / float64(stats.TotalRecords) * 100
		stats.CompletionRate = math.Round(rate*10) / 10
	}
	return stats, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
