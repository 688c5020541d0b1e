package storage

import (
	"context"
	"time"

	"volunteer-coordination/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timed bounds every call on the wrapped store by a fixed timeout, so that
// no persistence call can block a request indefinitely.
type Timed struct {
	next    Store
	timeout time.Duration
}

func WithTimeout(next Store, timeout time.Duration) *Timed {
	return &Timed{next: next, timeout: timeout}
}

func (t *Timed) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.timeout)
}

func (t *Timed) CreateEvent(ctx context.Context, event *models.Event) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateEvent(ctx, event)
}

func (t *Timed) GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetEvent(ctx, id)
}

func (t *Timed) UpdateEvent(ctx context.Context, event *models.Event) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateEvent(ctx, event)
}

func (t *Timed) ListEventsNeedingVolunteers(ctx context.Context, now time.Time) ([]models.Event, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListEventsNeedingVolunteers(ctx, now)
}

func (t *Timed) EventStats(ctx context.Context) (models.EventStats, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.EventStats(ctx)
}

func (t *Timed) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetUser(ctx, id)
}

func (t *Timed) ListMatchableVolunteers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListMatchableVolunteers(ctx)
}

func (t *Timed) ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]primitive.ObjectID, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListUserIDsByRole(ctx, role)
}

func (t *Timed) UpsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpsertUser(ctx, user)
}

func (t *Timed) CreateNotification(ctx context.Context, n *models.Notification) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateNotification(ctx, n)
}

func (t *Timed) ListNotifications(ctx context.Context, recipientID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListNotifications(ctx, recipientID, limit, unreadOnly)
}

func (t *Timed) MarkNotificationRead(ctx context.Context, id, recipientID primitive.ObjectID, at time.Time) (*models.Notification, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.MarkNotificationRead(ctx, id, recipientID, at)
}

func (t *Timed) MarkAllNotificationsRead(ctx context.Context, recipientID primitive.ObjectID, at time.Time) (int64, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.MarkAllNotificationsRead(ctx, recipientID, at)
}

func (t *Timed) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CountUnread(ctx, recipientID)
}

func (t *Timed) DeleteNotification(ctx context.Context, id, recipientID primitive.ObjectID) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeleteNotification(ctx, id, recipientID)
}

func (t *Timed) UpsertDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpsertDeviceToken(ctx, token)
}

func (t *Timed) ListActiveDeviceTokens(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListActiveDeviceTokens(ctx, userID)
}

func (t *Timed) DeactivateDeviceToken(ctx context.Context, fcmToken string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeactivateDeviceToken(ctx, fcmToken)
}

func (t *Timed) CreateHistory(ctx context.Context, record *models.HistoryRecord) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateHistory(ctx, record)
}

func (t *Timed) LatestHistory(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.LatestHistory(ctx, volunteerID, eventID)
}

func (t *Timed) UpdateHistory(ctx context.Context, record *models.HistoryRecord) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateHistory(ctx, record)
}

func (t *Timed) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListHistory(ctx, filter)
}

func (t *Timed) Ping(ctx context.Context) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.Ping(ctx)
}

func (t *Timed) Close() error {
	return t.next.Close()
}
