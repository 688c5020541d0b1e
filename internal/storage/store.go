package storage

import (
	"context"
	"errors"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by UpdateEvent when the stored version
	// no longer matches the version the caller read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a document with the same id already
	// exists.
	ErrDuplicate = errors.New("duplicate")
	// ErrUnavailable wraps timeouts and network failures of a backend.
	ErrUnavailable = apperrors.ErrStoreUnavailable
)

// EventStore persists events together with their assignment collection.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	// UpdateEvent replaces the event only if the stored version equals
	// event.Version, then increments event.Version. It is the single
	// compare-and-swap point for the assignment collection.
	UpdateEvent(ctx context.Context, event *models.Event) error
	ListEventsNeedingVolunteers(ctx context.Context, now time.Time) ([]models.Event, error)
	EventStats(ctx context.Context) (models.EventStats, error)
}

// VolunteerStore is the read model of volunteer profiles.
type VolunteerStore interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// ListMatchableVolunteers returns volunteers with complete profiles and
	// at least one skill, ordered by id.
	ListMatchableVolunteers(ctx context.Context) ([]models.User, error)
	ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]primitive.ObjectID, error)
}

type NotificationStore interface {
	// CreateNotification assigns an id when n.ID is zero and returns
	// ErrDuplicate when n.ID is already stored.
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, recipientID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, recipientID primitive.ObjectID, at time.Time) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID primitive.ObjectID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	DeleteNotification(ctx context.Context, id, recipientID primitive.ObjectID) error
}

type DeviceTokenStore interface {
	UpsertDeviceToken(ctx context.Context, token *models.DeviceToken) error
	ListActiveDeviceTokens(ctx context.Context, userID primitive.ObjectID) ([]string, error)
	DeactivateDeviceToken(ctx context.Context, fcmToken string) error
}

type HistoryStore interface {
	// CreateHistory returns ErrDuplicate when record.ID is already stored.
	CreateHistory(ctx context.Context, record *models.HistoryRecord) error
	// LatestHistory returns the most recently assigned record for the pair.
	LatestHistory(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error)
	UpdateHistory(ctx context.Context, record *models.HistoryRecord) error
	// ListHistory returns records newest event first. Limit 0 means no limit.
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error)
}

// Store is everything the server needs from persistence.
type Store interface {
	EventStore
	VolunteerStore
	NotificationStore
	DeviceTokenStore
	HistoryStore

	// UpsertUser and Ping are used by fixtures and health checks.
	UpsertUser(ctx context.Context, user *models.User) error
	Ping(ctx context.Context) error
	Close() error
}
