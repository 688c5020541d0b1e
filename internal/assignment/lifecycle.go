package assignment

import (
	"context"
	"fmt"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateEvent stores a new Active event with an empty assignment collection.
func (s *Service) CreateEvent(ctx context.Context, event *models.Event) error {
	now := s.cfg.Now()
	if !event.Date.After(now) {
		return apperrors.Validation("event date must be in the future", apperrors.FieldError{
			Field: "date", Tag: "future", Message: "date must be in the future",
		})
	}
	if event.RequiredVolunteers < 1 {
		return apperrors.Validation("invalid capacity", apperrors.FieldError{
			Field: "requiredVolunteers", Tag: "min", Message: "requiredVolunteers must be at least 1",
		})
	}

	event.ID = primitive.NewObjectID()
	event.Status = models.EventStatusActive
	event.AssignedVolunteers = []models.Assignment{}
	event.Version = 0
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return apperrors.From(err)
	}

	s.log.Info().Str("event_id", event.ID.Hex()).Str("title", event.Title).Msg("Event created")
	return nil
}

// SetEventStatus moves an event through its lifecycle. Existing
// assignments are left untouched so completion details can still be
// recorded on a Completed event.
func (s *Service) SetEventStatus(ctx context.Context, eventID primitive.ObjectID, status string) (*models.Event, error) {
	if !models.IsValidEventStatus(status) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidStatus, fmt.Sprintf("invalid event status %q", status), nil)
	}

	event, err := s.mutate(ctx, eventID, func(event *models.Event) (bool, *events.Event, error) {
		if event.Status == status {
			return false, nil, nil
		}
		if !CanTransitionEvent(event.Status, status) {
			return false, nil, apperrors.Wrap(apperrors.CodeInvalidTransition,
				fmt.Sprintf("cannot move event from %s to %s", event.Status, status), nil)
		}
		event.Status = status
		return true, nil, nil
	})
	s.observe("set_event_status", err)
	return event, err
}
