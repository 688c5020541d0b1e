package assignment

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/history"
	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"
	"volunteer-coordination/internal/storage/boltstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store *boltstore.Store
	pub   *recorder
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "assign.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pub := &recorder{}
	svc := NewService(store, pub, Config{
		MaxRetries:      20,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Logger:          logger.Nop(),
	})
	return &fixture{store: store, pub: pub, svc: svc}
}

func (f *fixture) event(t *testing.T, required int) *models.Event {
	t.Helper()
	e := &models.Event{
		Title:              "Shelter shift",
		Date:               time.Now().Add(72 * time.Hour),
		Skills:             []string{"Cooking"},
		Urgency:            models.UrgencyHigh,
		RequiredVolunteers: required,
	}
	require.NoError(t, f.svc.CreateEvent(context.Background(), e))
	return e
}

func (f *fixture) volunteer(t *testing.T, name string) primitive.ObjectID {
	t.Helper()
	u := &models.User{
		Email:      name + "@example.org",
		Role:       models.RoleVolunteer,
		IsComplete: true,
		Profile:    models.Profile{FullName: name, Skills: []string{"Cooking"}},
	}
	require.NoError(t, f.store.UpsertUser(context.Background(), u))
	return u.ID
}

func TestAssignRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 2)
	v1, v2, v3 := f.volunteer(t, "V1"), f.volunteer(t, "V2"), f.volunteer(t, "V3")

	got, err := f.svc.Assign(ctx, event.ID, v1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, matching.LedgerFor(got).Remaining())
	assert.Equal(t, "V1", got.AssignedVolunteers[0].VolunteerName)
	assert.Equal(t, models.AssignmentAssigned, got.AssignedVolunteers[0].Status)

	got, err = f.svc.Assign(ctx, event.ID, v2, "Volunteer Two")
	require.NoError(t, err)
	assert.Equal(t, 0, matching.LedgerFor(got).Remaining())
	assert.Equal(t, "Volunteer Two", got.AssignedVolunteers[1].VolunteerName)

	_, err = f.svc.Assign(ctx, event.ID, v3, "")
	assert.ErrorIs(t, err, apperrors.ErrEventFull)

	assert.Equal(t, []events.Type{events.AssignmentCreated, events.AssignmentCreated}, f.pub.types())
}

func TestAssignRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 3)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, event.ID, v, "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)
}

func TestAssignRemoveAssignCreatesTwoRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	_, err = f.svc.Remove(ctx, event.ID, v, "")
	require.NoError(t, err)
	got, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)

	require.Len(t, got.AssignedVolunteers, 2)
	assert.Equal(t, models.AssignmentCancelled, got.AssignedVolunteers[0].Status)
	assert.Equal(t, models.AssignmentAssigned, got.AssignedVolunteers[1].Status)
	assert.NotEqual(t, got.AssignedVolunteers[0].ID, got.AssignedVolunteers[1].ID)
	assert.Equal(t, 1, matching.LedgerFor(got).ActiveCount)

	assert.Equal(t, []events.Type{
		events.AssignmentCreated, events.AssignmentCancelled, events.AssignmentCreated,
	}, f.pub.types())
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 2)
	v := f.volunteer(t, "V")

	_, err := f.svc.Remove(ctx, event.ID, v, "")
	assert.ErrorIs(t, err, apperrors.ErrAssignmentNotFound)

	_, err = f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	got, err := f.svc.Remove(ctx, event.ID, v, "schedule conflict")
	require.NoError(t, err)
	require.Len(t, got.AssignedVolunteers, 1, "cancellation keeps the assignment")
	assert.Equal(t, models.AssignmentCancelled, got.AssignedVolunteers[0].Status)

	f.pub.mu.Lock()
	last := f.pub.events[len(f.pub.events)-1]
	f.pub.mu.Unlock()
	assert.Equal(t, events.AssignmentCancelled, last.Type)
	assert.Equal(t, "schedule conflict", last.Reason)
	assert.Equal(t, models.AssignmentAssigned, last.PreviousStatus)

	before := len(f.pub.types())
	_, err = f.svc.Remove(ctx, event.ID, v, "")
	require.NoError(t, err, "removing twice is a no-op")
	assert.Len(t, f.pub.types(), before)

	_, err = f.svc.Remove(ctx, primitive.NewObjectID(), v, "")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestAssignRejectsClosedEvents(t *testing.T) {
	for _, status := range []string{models.EventStatusCancelled, models.EventStatusCompleted} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			event := f.event(t, 5)
			v := f.volunteer(t, "V")

			_, err := f.svc.SetEventStatus(ctx, event.ID, status)
			require.NoError(t, err)

			_, err = f.svc.Assign(ctx, event.ID, v, "")
			assert.ErrorIs(t, err, apperrors.ErrEventNotAcceptingVolunteers)
		})
	}
}

func TestAssignLookupErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, primitive.NewObjectID(), v, "")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

	_, err = f.svc.Assign(ctx, event.ID, primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, apperrors.ErrVolunteerNotFound)

	admin := &models.User{Email: "admin@example.org", Role: models.RoleAdmin}
	require.NoError(t, f.store.UpsertUser(ctx, admin))
	_, err = f.svc.Assign(ctx, event.ID, admin.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrVolunteerNotFound)
}

func TestConcurrentAssignLastSeat(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, 1)
	v1, v2 := f.volunteer(t, "V1"), f.volunteer(t, "V2")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, v := range []primitive.ObjectID{v1, v2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Assign(context.Background(), event.ID, v, "")
		}()
	}
	close(start)
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperrors.CodeOf(err) == apperrors.CodeEventFull:
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)

	stored, err := f.store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, matching.LedgerFor(stored).ActiveCount)
}

func TestConcurrentAssignNeverOverbooks(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, 3)

	const n = 10
	volunteers := make([]primitive.ObjectID, n)
	for i := range volunteers {
		volunteers[i] = f.volunteer(t, "V")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, v := range volunteers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Assign(context.Background(), event.ID, v, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stored, err := f.store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, successes)
	assert.Equal(t, 3, matching.LedgerFor(stored).ActiveCount)
	assert.Len(t, f.pub.types(), 3)
}

func TestCancelledRequestLeavesNoState(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.Error(t, err)

	stored, err := f.store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AssignedVolunteers)
	assert.Empty(t, f.pub.types())
}

func (f *fixture) history(t *testing.T, eventID, volunteerID primitive.ObjectID) {
	t.Helper()
	require.NoError(t, f.store.CreateHistory(context.Background(), &models.HistoryRecord{
		VolunteerID:  volunteerID,
		EventID:      eventID,
		EventName:    "Shelter shift",
		AssignedDate: time.Now(),
		Status:       models.HistoryAssigned,
	}))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 2)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	f.history(t, event.ID, v)

	record, err := f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryConfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.HistoryConfirmed, record.Status)

	stored, err := f.store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentConfirmed, stored.AssignedVolunteers[0].Status)

	hours := 4.5
	record, err = f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryCompleted, HoursWorked: &hours})
	require.NoError(t, err)
	assert.Equal(t, 4.5, record.HoursWorked)

	published := len(f.pub.types())
	again, err := f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryCompleted, HoursWorked: &hours})
	require.NoError(t, err, "identical repeat is a no-op")
	assert.Equal(t, record.ID, again.ID)
	assert.Equal(t, record.UpdatedAt.Unix(), again.UpdatedAt.Unix())
	assert.Len(t, f.pub.types(), published)

	_, err = f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryConfirmed})
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))

	assert.Equal(t, []events.Type{
		events.AssignmentCreated, events.AssignmentStatusChanged, events.AssignmentStatusChanged,
	}, f.pub.types())
}

func TestUpdateStatusNoShowTouchesHistoryOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	f.history(t, event.ID, v)

	record, err := f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryNoShow})
	require.NoError(t, err)
	assert.Equal(t, models.HistoryNoShow, record.Status)

	stored, err := f.store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAssigned, stored.AssignedVolunteers[0].Status)
}

func TestUpdateStatusBeforeHistoryIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	assigned, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	a := assigned.AssignedVolunteers[0]

	record, err := f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryConfirmed})
	require.NoError(t, err)
	assert.Equal(t, a.ID, record.ID)
	assert.Equal(t, models.HistoryConfirmed, record.Status)
	assert.Equal(t, "Shelter shift", record.EventName)
	assert.Equal(t, "V", record.VolunteerName)

	// The asynchronous append arriving late must not add a second record.
	rec := history.NewRecorder(f.store, logger.Nop())
	f.pub.mu.Lock()
	created := f.pub.events[0]
	f.pub.mu.Unlock()
	require.Equal(t, events.AssignmentCreated, created.Type)
	require.NoError(t, rec.HandleEvent(ctx, created))

	all, err := f.store.ListHistory(ctx, models.HistoryFilter{VolunteerID: &v, EventID: &event.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.HistoryConfirmed, all[0].Status)
}

// historyOutage fails the next UpdateHistory call.
type historyOutage struct {
	*boltstore.Store
	fail bool
}

func (s *historyOutage) UpdateHistory(ctx context.Context, record *models.HistoryRecord) error {
	if s.fail {
		s.fail = false
		return storage.ErrUnavailable
	}
	return s.Store.UpdateHistory(ctx, record)
}

func TestUpdateStatusRetryAfterHistoryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	_, err := f.svc.Assign(ctx, event.ID, v, "")
	require.NoError(t, err)
	f.history(t, event.ID, v)

	store := &historyOutage{Store: f.store, fail: true}
	svc := NewService(store, f.pub, Config{Logger: logger.Nop()})

	_, err = svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryConfirmed})
	assert.True(t, apperrors.IsRetryable(err))

	stored, err := f.store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentConfirmed, stored.AssignedVolunteers[0].Status)
	assert.Equal(t, []events.Type{events.AssignmentCreated}, f.pub.types())

	record, err := svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryConfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.HistoryConfirmed, record.Status)
	assert.Equal(t, []events.Type{events.AssignmentCreated, events.AssignmentStatusChanged}, f.pub.types())
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)
	v := f.volunteer(t, "V")

	_, err := f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: "Vanished"})
	assert.Equal(t, apperrors.CodeInvalidStatus, apperrors.CodeOf(err))

	_, err = f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryCompleted})
	assert.ErrorIs(t, err, apperrors.ErrHistoryNotFound)

	f.history(t, event.ID, v)
	negative := -1.0
	_, err = f.svc.UpdateStatus(ctx, v, event.ID, StatusUpdate{Status: models.HistoryCompleted, HoursWorked: &negative})
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
}

func TestSetEventStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, 1)

	got, err := f.svc.SetEventStatus(ctx, event.ID, models.EventStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCompleted, got.Status)

	_, err = f.svc.SetEventStatus(ctx, event.ID, models.EventStatusActive)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))

	_, err = f.svc.SetEventStatus(ctx, event.ID, "Archived")
	assert.Equal(t, apperrors.CodeInvalidStatus, apperrors.CodeOf(err))
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateEvent(context.Background(), &models.Event{
		Title:              "Past",
		Date:               time.Now().Add(-time.Hour),
		RequiredVolunteers: 1,
	})
	require.Error(t, err)
	appErr := apperrors.From(err)
	assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "date", appErr.Fields[0].Field)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.AssignmentAssigned, models.AssignmentConfirmed, true},
		{models.AssignmentAssigned, models.AssignmentCompleted, true},
		{models.AssignmentAssigned, models.AssignmentCancelled, true},
		{models.AssignmentConfirmed, models.AssignmentCompleted, true},
		{models.AssignmentConfirmed, models.AssignmentAssigned, false},
		{models.AssignmentCompleted, models.AssignmentCancelled, false},
		{models.AssignmentCancelled, models.AssignmentAssigned, false},
		{models.AssignmentCompleted, models.AssignmentCompleted, true},
		{"bogus", "bogus", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
