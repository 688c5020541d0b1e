// Package notify persists notifications and fans them out to live sessions
// and registered devices.
//
// The persisted record is the source of truth. Pushes are best effort: a
// recipient without a live session, or a sink that fails or times out, is
// logged and counted but never fails the call. Deliveries to one recipient
// are serialized, so sessions observe notifications in creation order.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/metrics"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const maxMessageLength = 500

type Store interface {
	storage.NotificationStore
	storage.DeviceTokenStore
	ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]primitive.ObjectID, error)
}

// Sink delivers an already persisted notification somewhere outside the store.
type Sink interface {
	Name() string
	Push(ctx context.Context, n *models.Notification) error
}

type Config struct {
	BroadcastConcurrency int
	PushTimeout          time.Duration
	Logger               zerolog.Logger
	Now                  func() time.Time
}

type Dispatcher struct {
	store Store
	sinks []Sink
	cfg   Config
	log   zerolog.Logger

	locks [64]sync.Mutex
}

func NewDispatcher(store Store, cfg Config, sinks ...Sink) *Dispatcher {
	if cfg.BroadcastConcurrency <= 0 {
		cfg.BroadcastConcurrency = 8
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		store: store,
		sinks: sinks,
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "notify").Logger(),
	}
}

// Request describes one notification.
type Request struct {
	// ID is optional. A fixed id makes a repeated request create the
	// notification only once.
	ID          primitive.ObjectID
	RecipientID   primitive.ObjectID
	RecipientRole models.UserRole
	Message       string
	Category      string
	EventID       *primitive.ObjectID
}

func (r *Request) validate() error {
	var fields []apperrors.FieldError
	if r.RecipientID.IsZero() {
		fields = append(fields, apperrors.FieldError{Field: "recipientId", Tag: "required", Message: "recipientId is required"})
	}
	if !r.RecipientRole.IsValid() {
		fields = append(fields, apperrors.FieldError{Field: "recipientType", Tag: "oneof", Message: "recipientType must be volunteer or admin"})
	}
	switch {
	case r.Message == "":
		fields = append(fields, apperrors.FieldError{Field: "message", Tag: "required", Message: "message is required"})
	case len(r.Message) > maxMessageLength:
		fields = append(fields, apperrors.FieldError{Field: "message", Tag: "max", Message: fmt.Sprintf("message must be at most %d characters", maxMessageLength)})
	}
	if r.Category == "" {
		r.Category = models.NotificationInfo
	}
	if !models.IsValidNotificationType(r.Category) {
		fields = append(fields, apperrors.FieldError{Field: "type", Tag: "oneof", Message: "unknown notification type"})
	}
	if len(fields) > 0 {
		return apperrors.Validation("invalid notification", fields...)
	}
	return nil
}

func (d *Dispatcher) lockFor(id primitive.ObjectID) *sync.Mutex {
	return &d.locks[int(id[len(id)-1])%len(d.locks)]
}

// Notify creates exactly one notification and pushes it to every sink. It
// fails only if the notification could not be persisted.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (*models.Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return d.notify(ctx, req)
}

func (d *Dispatcher) notify(ctx context.Context, req Request) (*models.Notification, error) {
	n := &models.Notification{
		ID:            req.ID,
		RecipientID:   req.RecipientID,
		RecipientType: req.RecipientRole,
		Message:       req.Message,
		Type:          req.Category,
		EventID:       req.EventID,
		CreatedAt:     d.cfg.Now(),
	}

	mu := d.lockFor(req.RecipientID)
	mu.Lock()
	defer mu.Unlock()

	switch err := d.store.CreateNotification(ctx, n); {
	case errors.Is(err, storage.ErrDuplicate):
		// An earlier attempt persisted it but failed before pushing.
		d.log.Debug().Str("notification_id", n.ID.Hex()).Msg("Notification already stored")
	case err != nil:
		return nil, apperrors.From(err)
	default:
		metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()
	}

	for _, sink := range d.sinks {
		d.push(ctx, sink, n)
	}
	return n, nil
}

func (d *Dispatcher) push(ctx context.Context, sink Sink, n *models.Notification) {
	pushCtx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()

	if err := sink.Push(pushCtx, n); err != nil {
		metrics.PushFailures.WithLabelValues(sink.Name()).Inc()
		d.log.Warn().Err(err).
			Str("sink", sink.Name()).
			Str("recipient_id", n.RecipientID.Hex()).
			Str("notification_id", n.ID.Hex()).
			Msg("Push failed")
	}
}

// Broadcast notifies every user of the role and returns how many
// notifications were persisted. Individual failures are logged and skipped.
func (d *Dispatcher) Broadcast(ctx context.Context, role models.UserRole, message, category string, eventID *primitive.ObjectID) (int, error) {
	sample := Request{RecipientID: primitive.NewObjectID(), RecipientRole: role, Message: message, Category: category}
	if err := sample.validate(); err != nil {
		return 0, err
	}

	recipients, err := d.store.ListUserIDsByRole(ctx, role)
	if err != nil {
		return 0, apperrors.From(err)
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.BroadcastConcurrency)
	for _, id := range recipients {
		g.Go(func() error {
			_, err := d.notify(gctx, Request{
				RecipientID:   id,
				RecipientRole: role,
				Message:       message,
				Category:      sample.Category,
				EventID:       eventID,
			})
			if err != nil {
				d.log.Warn().Err(err).Str("recipient_id", id.Hex()).Msg("Broadcast delivery failed")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info().
		Str("role", role.String()).
		Int("recipients", len(recipients)).
		Int64("sent", sent.Load()).
		Msg("Broadcast finished")
	return int(sent.Load()), nil
}

// ListFor returns the recipient's notifications, newest first.
func (d *Dispatcher) ListFor(ctx context.Context, recipientID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := d.store.ListNotifications(ctx, recipientID, limit, unreadOnly)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (d *Dispatcher) MarkRead(ctx context.Context, id, recipientID primitive.ObjectID) (*models.Notification, error) {
	n, err := d.store.MarkNotificationRead(ctx, id, recipientID, d.cfg.Now())
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	modified, err := d.store.MarkAllNotificationsRead(ctx, recipientID, d.cfg.Now())
	if err != nil {
		return 0, apperrors.From(err)
	}
	return modified, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	count, err := d.store.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, apperrors.From(err)
	}
	return count, nil
}

func (d *Dispatcher) Delete(ctx context.Context, id, recipientID primitive.ObjectID) error {
	if err := d.store.DeleteNotification(ctx, id, recipientID); err != nil {
		return notFound(err)
	}
	return nil
}

// RegisterDevice stores an FCM token for the user. Re-registering a token
// moves it to the caller and reactivates it.
func (d *Dispatcher) RegisterDevice(ctx context.Context, userID primitive.ObjectID, fcmToken, platform string) (*models.DeviceToken, error) {
	now := d.cfg.Now()
	token := &models.DeviceToken{
		UserID:    userID,
		FCMToken:  fcmToken,
		Platform:  platform,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.UpsertDeviceToken(ctx, token); err != nil {
		return nil, apperrors.From(err)
	}
	return token, nil
}

// UnregisterDevice stops pushes to the token.
func (d *Dispatcher) UnregisterDevice(ctx context.Context, fcmToken string) error {
	if err := d.store.DeactivateDeviceToken(ctx, fcmToken); err != nil {
		return apperrors.From(err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.ErrNotificationNotFound
	}
	return apperrors.From(err)
}
