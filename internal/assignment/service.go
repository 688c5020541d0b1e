// Package assignment is the state machine that attaches volunteers to
// events. Every mutation is a read-modify-write of the event document
// guarded by its version: a concurrent writer makes UpdateEvent fail with a
// version conflict, the loser re-reads the event and re-checks capacity.
// Domain events are published only after the write has been committed.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/metrics"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is what the state machine needs from persistence.
type Store interface {
	storage.EventStore
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	CreateHistory(ctx context.Context, record *models.HistoryRecord) error
	LatestHistory(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error)
	UpdateHistory(ctx context.Context, record *models.HistoryRecord) error
}

// Publisher receives domain events after a successful commit.
type Publisher interface {
	Publish(e events.Event)
}

type Config struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          zerolog.Logger
	Now             func() time.Time
}

type Service struct {
	store     Store
	publisher Publisher
	cfg       Config
	log       zerolog.Logger
}

func NewService(store Store, publisher Publisher, cfg Config) *Service {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 5 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 200 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "assignment").Logger(),
	}
}

// mutation changes the event in place. It reports whether anything changed
// and which domain event, if any, to publish once the write is committed.
type mutation func(event *models.Event) (changed bool, publish *events.Event, err error)

// mutate runs apply against the latest version of the event until the write
// wins or a non-conflict error occurs. Only version conflicts are retried;
// every other store failure fails the call closed.
func (s *Service) mutate(ctx context.Context, eventID primitive.ObjectID, apply mutation) (*models.Event, error) {
	var pending *events.Event

	op := func() (*models.Event, error) {
		pending = nil

		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, backoff.Permanent(apperrors.ErrEventNotFound)
			}
			return nil, backoff.Permanent(apperrors.From(err))
		}

		changed, domainEvent, err := apply(event)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !changed {
			return event, nil
		}

		event.UpdatedAt = s.cfg.Now()
		if err := s.store.UpdateEvent(ctx, event); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				metrics.AssignmentConflictRetries.Inc()
				return nil, err
			}
			if errors.Is(err, storage.ErrNotFound) {
				return nil, backoff.Permanent(apperrors.ErrEventNotFound)
			}
			return nil, backoff.Permanent(apperrors.From(err))
		}

		pending = domainEvent
		return event, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.InitialInterval
	expo.MaxInterval = s.cfg.MaxInterval

	event, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.cfg.MaxRetries),
	)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return nil, apperrors.Wrap(apperrors.CodeVersionConflict, "event is under heavy contention, retry later", err)
		}
		return nil, apperrors.From(err)
	}

	// The write is committed; side effects must not depend on the caller
	// still waiting.
	if pending != nil {
		s.publisher.Publish(*pending)
	}
	return event, nil
}

// Assign attaches the volunteer to the event. An empty displayName falls
// back to the profile's name; either way the name is a snapshot.
func (s *Service) Assign(ctx context.Context, eventID, volunteerID primitive.ObjectID, displayName string) (*models.Event, error) {
	event, err := s.assign(ctx, eventID, volunteerID, displayName)
	s.observe("assign", err)
	return event, err
}

func (s *Service) assign(ctx context.Context, eventID, volunteerID primitive.ObjectID, displayName string) (*models.Event, error) {
	volunteer, err := s.store.GetUser(ctx, volunteerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.ErrVolunteerNotFound
		}
		return nil, apperrors.From(err)
	}
	if volunteer.Role != models.RoleVolunteer {
		return nil, apperrors.ErrVolunteerNotFound
	}
	if displayName == "" {
		displayName = volunteer.DisplayName()
	}

	event, err := s.mutate(ctx, eventID, func(event *models.Event) (bool, *events.Event, error) {
		if !event.AcceptsVolunteers() {
			return false, nil, apperrors.ErrEventNotAcceptingVolunteers
		}
		if matching.LedgerFor(event).IsFull() {
			return false, nil, apperrors.ErrEventFull
		}
		if event.ActiveAssignment(volunteerID) >= 0 {
			return false, nil, apperrors.ErrAlreadyAssigned
		}

		now := s.cfg.Now()
		a := models.Assignment{
			ID:            primitive.NewObjectID(),
			VolunteerID:   volunteerID,
			VolunteerName: displayName,
			AssignedAt:    now,
			Status:        models.AssignmentAssigned,
			UpdatedAt:     now,
		}
		event.AssignedVolunteers = append(event.AssignedVolunteers, a)

		return true, &events.Event{
			Type:          events.AssignmentCreated,
			EventID:       event.ID,
			EventTitle:    event.Title,
			EventDate:     event.Date,
			VolunteerID:   volunteerID,
			VolunteerName: displayName,
			AssignmentID:  a.ID,
			AssignedAt:    a.AssignedAt,
			Status:        a.Status,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("event_id", eventID.Hex()).
		Str("volunteer_id", volunteerID.Hex()).
		Msg("Volunteer assigned")
	return event, nil
}

// Remove cancels the volunteer's active assignment. The assignment is kept
// with status Cancelled. Removing an already cancelled volunteer is a no-op.
func (s *Service) Remove(ctx context.Context, eventID, volunteerID primitive.ObjectID, reason string) (*models.Event, error) {
	event, err := s.mutate(ctx, eventID, func(event *models.Event) (bool, *events.Event, error) {
		i := event.ActiveAssignment(volunteerID)
		if i < 0 {
			if event.LatestAssignment(volunteerID) >= 0 {
				return false, nil, nil
			}
			return false, nil, apperrors.ErrAssignmentNotFound
		}

		a := &event.AssignedVolunteers[i]
		previous := a.Status
		a.Status = models.AssignmentCancelled
		a.UpdatedAt = s.cfg.Now()

		return true, &events.Event{
			Type:           events.AssignmentCancelled,
			EventID:        event.ID,
			EventTitle:     event.Title,
			EventDate:      event.Date,
			VolunteerID:    volunteerID,
			VolunteerName:  a.VolunteerName,
			AssignmentID:   a.ID,
			AssignedAt:     a.AssignedAt,
			Status:         models.AssignmentCancelled,
			PreviousStatus: previous,
			Reason:         reason,
		}, nil
	})
	s.observe("remove", err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("event_id", eventID.Hex()).
		Str("volunteer_id", volunteerID.Hex()).
		Bool("with_reason", reason != "").
		Msg("Volunteer removed")
	return event, nil
}

// StatusUpdate is an administrative status change for a (volunteer, event)
// pair.
type StatusUpdate struct {
	Status      string
	HoursWorked *float64
	Feedback    *string
	Rating      *int
}

// UpdateStatus marks attendance outcomes. The pair's active assignment is
// transitioned when the status is an assignment status, and the latest
// history record is updated in place. Repeating an identical call returns
// the unchanged record.
//
// The assignment is committed before the history record. If the history
// write fails the call returns the error and publishes nothing; repeating
// it finds the transition already applied and finishes the history update.
func (s *Service) UpdateStatus(ctx context.Context, volunteerID, eventID primitive.ObjectID, update StatusUpdate) (*models.HistoryRecord, error) {
	record, err := s.updateStatus(ctx, volunteerID, eventID, update)
	s.observe("update_status", err)
	return record, err
}

func (s *Service) updateStatus(ctx context.Context, volunteerID, eventID primitive.ObjectID, update StatusUpdate) (*models.HistoryRecord, error) {
	if !models.IsValidHistoryStatus(update.Status) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidStatus, fmt.Sprintf("invalid status %q", update.Status), nil)
	}
	if update.HoursWorked != nil && *update.HoursWorked < 0 {
		return nil, apperrors.Validation("invalid hours worked", apperrors.FieldError{
			Field: "hoursWorked", Tag: "min", Message: "hoursWorked must not be negative",
		})
	}

	record, err := s.historyFor(ctx, volunteerID, eventID)
	if err != nil {
		return nil, err
	}

	if models.IsValidAssignmentStatus(update.Status) {
		if err := s.transition(ctx, eventID, volunteerID, update.Status); err != nil {
			return nil, err
		}
	}

	previous := record.Status
	changed := models.HistoryUpdate{
		Status:      update.Status,
		HoursWorked: update.HoursWorked,
		Feedback:    update.Feedback,
		Rating:      update.Rating,
	}.Apply(record)
	if !changed {
		return record, nil
	}

	record.UpdatedAt = s.cfg.Now()
	if err := s.store.UpdateHistory(ctx, record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.ErrHistoryNotFound
		}
		return nil, apperrors.From(err)
	}

	if previous != record.Status {
		s.publisher.Publish(events.Event{
			Type:           events.AssignmentStatusChanged,
			EventID:        eventID,
			EventTitle:     record.EventName,
			EventDate:      record.EventDate,
			VolunteerID:    volunteerID,
			VolunteerName:  record.VolunteerName,
			AssignedAt:     record.AssignedDate,
			Status:         record.Status,
			PreviousStatus: previous,
		})
	}
	return record, nil
}

// historyFor returns the pair's latest history record. The record for a new
// assignment is appended asynchronously; until it lands, it is created here
// from the event's active assignment under the assignment id, which the
// asynchronous append then finds as a duplicate.
func (s *Service) historyFor(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error) {
	record, err := s.store.LatestHistory(ctx, volunteerID, eventID)
	switch {
	case err == nil:
		return record, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.From(err)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.ErrHistoryNotFound
		}
		return nil, apperrors.From(err)
	}
	i := event.ActiveAssignment(volunteerID)
	if i < 0 {
		return nil, apperrors.ErrHistoryNotFound
	}
	a := event.AssignedVolunteers[i]

	now := s.cfg.Now()
	record = &models.HistoryRecord{
		ID:            a.ID,
		VolunteerID:   volunteerID,
		EventID:       eventID,
		VolunteerName: a.VolunteerName,
		EventName:     event.Title,
		EventDate:     event.Date,
		AssignedDate:  a.AssignedAt,
		Status:        a.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch err := s.store.CreateHistory(ctx, record); {
	case err == nil:
		s.log.Debug().
			Str("volunteer_id", volunteerID.Hex()).
			Str("event_id", eventID.Hex()).
			Msg("History created from assignment")
		return record, nil
	case errors.Is(err, storage.ErrDuplicate):
		latest, err := s.store.LatestHistory(ctx, volunteerID, eventID)
		if err != nil {
			return nil, apperrors.From(err)
		}
		return latest, nil
	default:
		return nil, apperrors.From(err)
	}
}

// transition moves the pair's active assignment to status. Pairs without an
// active assignment, and events that no longer exist, leave the history
// record as the only thing to update.
func (s *Service) transition(ctx context.Context, eventID, volunteerID primitive.ObjectID, status string) error {
	_, err := s.mutate(ctx, eventID, func(event *models.Event) (bool, *events.Event, error) {
		i := event.ActiveAssignment(volunteerID)
		if i < 0 {
			return false, nil, nil
		}
		a := &event.AssignedVolunteers[i]
		if a.Status == status {
			return false, nil, nil
		}
		if !CanTransition(a.Status, status) {
			return false, nil, apperrors.Wrap(apperrors.CodeInvalidTransition,
				fmt.Sprintf("cannot move assignment from %s to %s", a.Status, status), nil)
		}
		a.Status = status
		a.UpdatedAt = s.cfg.Now()
		// UpdateStatus publishes once the history record is saved.
		return true, nil, nil
	})
	if errors.Is(err, apperrors.ErrEventNotFound) {
		return nil
	}
	return err
}

func (s *Service) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
	}
	metrics.AssignmentOpsTotal.WithLabelValues(op, result).Inc()
}
