package notify

import (
	"context"
	"fmt"

	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dateLayout = "1/2/2006"

// HandleEvent turns assignment domain events into volunteer notifications.
// It is registered on the event bus; a returned error makes the bus retry.
func (d *Dispatcher) HandleEvent(ctx context.Context, e events.Event) error {
	message, category, ok := describe(e)
	if !ok {
		return nil
	}

	eventID := e.EventID
	_, err := d.notify(ctx, Request{
		ID:            notificationID(e.ID),
		RecipientID:   e.VolunteerID,
		RecipientRole: models.RoleVolunteer,
		Message:       message,
		Category:      category,
		EventID:       &eventID,
	})
	return err
}

// notificationID derives a stable id from the domain event id, so a
// redelivered event maps onto the notification it already produced.
func notificationID(eventID string) primitive.ObjectID {
	var id primitive.ObjectID
	if eventID == "" {
		return id
	}
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID))
	copy(id[:], sum[:len(id)])
	return id
}

func describe(e events.Event) (message, category string, ok bool) {
	switch e.Type {
	case events.AssignmentCreated:
		return fmt.Sprintf("You have been assigned to %q on %s", e.EventTitle, e.EventDate.Format(dateLayout)),
			models.NotificationAssignment, true

	case events.AssignmentCancelled:
		message = fmt.Sprintf("You have been removed from %q", e.EventTitle)
		if e.Reason != "" {
			message += ": " + e.Reason
		}
		return message, models.NotificationWarning, true

	case events.AssignmentStatusChanged:
		switch e.Status {
		case models.HistoryConfirmed:
			return fmt.Sprintf("Your participation in %q has been confirmed", e.EventTitle), models.NotificationInfo, true
		case models.HistoryCompleted:
			return fmt.Sprintf("Thank you! Your participation in %q has been marked as completed", e.EventTitle), models.NotificationSuccess, true
		case models.HistoryNoShow:
			return fmt.Sprintf("You were marked as a no-show for %q", e.EventTitle), models.NotificationWarning, true
		case models.HistoryCancelled:
			return fmt.Sprintf("Your assignment to %q has been cancelled", e.EventTitle), models.NotificationWarning, true
		default:
			return fmt.Sprintf("Your status for %q is now %s", e.EventTitle, e.Status), models.NotificationInfo, true
		}
	}
	return "", "", false
}
