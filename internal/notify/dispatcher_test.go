package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage/boltstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []models.Notification
	fail error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Push(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, *n)
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, n := range s.got {
		out = append(out, n.Message)
	}
	return out
}

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newDispatcher(t *testing.T, sinks ...Sink) (*Dispatcher, *boltstore.Store) {
	t.Helper()
	store := openStore(t)
	return NewDispatcher(store, Config{Logger: logger.Nop()}, sinks...), store
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	sink := &recordingSink{}
	d, store := newDispatcher(t, sink)
	ctx := context.Background()
	recipient := primitive.NewObjectID()
	eventID := primitive.NewObjectID()

	n, err := d.Notify(ctx, Request{
		RecipientID:   recipient,
		RecipientRole: models.RoleVolunteer,
		Message:       "See you there",
		Category:      models.NotificationReminder,
		EventID:       &eventID,
	})
	require.NoError(t, err)
	assert.False(t, n.ID.IsZero())
	assert.False(t, n.IsRead)

	stored, err := store.ListNotifications(ctx, recipient, 10, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, n.ID, stored[0].ID)
	assert.Equal(t, []string{"See you there"}, sink.messages())
}

func TestNotifyDefaultsCategoryToInfo(t *testing.T) {
	d, _ := newDispatcher(t)
	n, err := d.Notify(context.Background(), Request{
		RecipientID:   primitive.NewObjectID(),
		RecipientRole: models.RoleAdmin,
		Message:       "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationInfo, n.Type)
}

func TestNotifyPushFailureIsNotAnError(t *testing.T) {
	sink := &recordingSink{fail: errors.New("socket gone")}
	d, store := newDispatcher(t, sink)
	recipient := primitive.NewObjectID()

	_, err := d.Notify(context.Background(), Request{
		RecipientID:   recipient,
		RecipientRole: models.RoleVolunteer,
		Message:       "still stored",
	})
	require.NoError(t, err)

	count, err := store.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotifyValidation(t *testing.T) {
	d, _ := newDispatcher(t)
	_, err := d.Notify(context.Background(), Request{RecipientRole: "guest", Category: "spam"})
	require.Error(t, err)

	appErr := apperrors.From(err)
	assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
	var fields []string
	for _, f := range appErr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"recipientId", "recipientType", "message", "type"}, fields)
}

func TestNotifyPreservesPerRecipientOrder(t *testing.T) {
	sink := &recordingSink{}
	d, _ := newDispatcher(t, sink)
	recipient := primitive.NewObjectID()

	want := []string{"first", "second", "third", "fourth"}
	for _, m := range want {
		_, err := d.Notify(context.Background(), Request{
			RecipientID: recipient, RecipientRole: models.RoleVolunteer, Message: m,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, want, sink.messages())
}

func TestBroadcast(t *testing.T) {
	sink := &recordingSink{}
	d, store := newDispatcher(t, sink)
	ctx := context.Background()

	var volunteers []primitive.ObjectID
	for i := 0; i < 5; i++ {
		u := &models.User{Email: "v@example.org", Role: models.RoleVolunteer}
		require.NoError(t, store.UpsertUser(ctx, u))
		volunteers = append(volunteers, u.ID)
	}
	require.NoError(t, store.UpsertUser(ctx, &models.User{Email: "a@example.org", Role: models.RoleAdmin}))

	count, err := d.Broadcast(ctx, models.RoleVolunteer, "Shift change", models.NotificationInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Len(t, sink.messages(), 5)

	for _, id := range volunteers {
		unread, err := store.CountUnread(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	}

	_, err = d.Broadcast(ctx, models.RoleVolunteer, "", "", nil)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
}

func TestReadStateAndDeletion(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	me, stranger := primitive.NewObjectID(), primitive.NewObjectID()

	var ids []primitive.ObjectID
	for _, m := range []string{"a", "b", "c"} {
		n, err := d.Notify(ctx, Request{RecipientID: me, RecipientRole: models.RoleVolunteer, Message: m})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	read, err := d.MarkRead(ctx, ids[0], me)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	_, err = d.MarkRead(ctx, ids[1], stranger)
	assert.ErrorIs(t, err, apperrors.ErrNotificationNotFound)

	unread, err := d.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	list, err := d.ListFor(ctx, me, 0, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	modified, err := d.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	assert.ErrorIs(t, d.Delete(ctx, ids[2], stranger), apperrors.ErrNotificationNotFound)
	require.NoError(t, d.Delete(ctx, ids[2], me))

	list, err = d.ListFor(ctx, me, 0, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := d.ListFor(ctx, stranger, 10, false)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRegisterDevice(t *testing.T) {
	d, store := newDispatcher(t)
	ctx := context.Background()
	user := primitive.NewObjectID()

	first, err := d.RegisterDevice(ctx, user, "token-1", "android")
	require.NoError(t, err)
	again, err := d.RegisterDevice(ctx, user, "token-1", "android")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	tokens, err := store.ListActiveDeviceTokens(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-1"}, tokens)

	require.NoError(t, d.UnregisterDevice(ctx, "token-1"))
	tokens, err = store.ListActiveDeviceTokens(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestHandleEvent(t *testing.T) {
	date := time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)
	volunteer := primitive.NewObjectID()

	tests := []struct {
		name     string
		event    events.Event
		message  string
		category string
	}{
		{
			name:     "assigned",
			event:    events.Event{Type: events.AssignmentCreated, EventTitle: "Food Drive", EventDate: date},
			message:  `You have been assigned to "Food Drive" on 11/3/2026`,
			category: models.NotificationAssignment,
		},
		{
			name:     "removed with reason",
			event:    events.Event{Type: events.AssignmentCancelled, EventTitle: "Food Drive", Reason: "event moved"},
			message:  `You have been removed from "Food Drive": event moved`,
			category: models.NotificationWarning,
		},
		{
			name:     "completed",
			event:    events.Event{Type: events.AssignmentStatusChanged, EventTitle: "Food Drive", Status: models.HistoryCompleted},
			message:  `Thank you! Your participation in "Food Drive" has been marked as completed`,
			category: models.NotificationSuccess,
		},
		{
			name:     "no-show",
			event:    events.Event{Type: events.AssignmentStatusChanged, EventTitle: "Food Drive", Status: models.HistoryNoShow},
			message:  `You were marked as a no-show for "Food Drive"`,
			category: models.NotificationWarning,
		},
		{
			name:     "confirmed",
			event:    events.Event{Type: events.AssignmentStatusChanged, EventTitle: "Food Drive", Status: models.HistoryConfirmed},
			message:  `Your participation in "Food Drive" has been confirmed`,
			category: models.NotificationInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			d, _ := newDispatcher(t, sink)
			tt.event.VolunteerID = volunteer
			tt.event.EventID = primitive.NewObjectID()

			require.NoError(t, d.HandleEvent(context.Background(), tt.event))

			require.Len(t, sink.got, 1)
			n := sink.got[0]
			assert.Equal(t, tt.message, n.Message)
			assert.Equal(t, tt.category, n.Type)
			assert.Equal(t, volunteer, n.RecipientID)
			assert.Equal(t, models.RoleVolunteer, n.RecipientType)
			require.NotNil(t, n.EventID)
			assert.Equal(t, tt.event.EventID, *n.EventID)
		})
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	sink := &recordingSink{}
	d, _ := newDispatcher(t, sink)
	require.NoError(t, d.HandleEvent(context.Background(), events.Event{Type: "other"}))
	assert.Empty(t, sink.got)
}

func TestHandleEventStoreFailureIsReturned(t *testing.T) {
	d, store := newDispatcher(t)
	require.NoError(t, store.Close())

	err := d.HandleEvent(context.Background(), events.Event{
		Type: events.AssignmentCreated, VolunteerID: primitive.NewObjectID(), EventTitle: "x",
	})
	assert.Error(t, err)
}

// flakyStore commits a notification and then reports a timeout, once.
type flakyStore struct {
	*boltstore.Store
	failed atomic.Bool
}

func (s *flakyStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.Store.CreateNotification(ctx, n); err != nil {
		return err
	}
	if s.failed.CompareAndSwap(false, true) {
		return context.DeadlineExceeded
	}
	return nil
}

func TestHandleEventRedeliveryCreatesOneNotification(t *testing.T) {
	store := &flakyStore{Store: openStore(t)}
	sink := &recordingSink{}
	d := NewDispatcher(store, Config{Logger: logger.Nop()}, sink)

	bus := events.NewBus(events.Config{MaxRetries: 3, InitialInterval: time.Millisecond, Logger: logger.Nop()})
	t.Cleanup(func() { _ = bus.Shutdown(context.Background()) })
	bus.Subscribe("notify", d.HandleEvent)

	volunteer := primitive.NewObjectID()
	bus.Publish(events.Event{
		Type:        events.AssignmentCreated,
		EventID:     primitive.NewObjectID(),
		EventTitle:  "Food Drive",
		EventDate:   time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC),
		VolunteerID: volunteer,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	assert.True(t, store.failed.Load())
	stored, err := store.ListNotifications(ctx, volunteer, 0, false)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	require.Len(t, sink.got, 1)
	assert.Equal(t, stored[0].ID, sink.got[0].ID)
}

func TestNotificationIDIsStablePerEvent(t *testing.T) {
	assert.Equal(t, notificationID("evt-1"), notificationID("evt-1"))
	assert.NotEqual(t, notificationID("evt-1"), notificationID("evt-2"))
	assert.True(t, notificationID("").IsZero())
}
