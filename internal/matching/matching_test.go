package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name         string
		volunteer    []string
		event        []string
		wantMatching []string
		wantScore    int
	}{
		{name: "partial coverage", volunteer: []string{"First Aid"}, event: []string{"First Aid", "CPR"}, wantMatching: []string{"First Aid"}, wantScore: 50},
		{name: "superset still 100", volunteer: []string{"First Aid", "CPR", "Driving"}, event: []string{"First Aid", "CPR"}, wantMatching: []string{"First Aid", "CPR"}, wantScore: 100},
		{name: "disjoint", volunteer: []string{"Cooking"}, event: []string{"First Aid", "CPR"}, wantMatching: []string{}, wantScore: 0},
		{name: "empty requirement", volunteer: []string{"Cooking"}, event: nil, wantMatching: []string{}, wantScore: 0},
		{name: "rounds to nearest", volunteer: []string{"a"}, event: []string{"a", "b", "c"}, wantMatching: []string{"a"}, wantScore: 33},
		{name: "two of three", volunteer: []string{"c", "a"}, event: []string{"a", "b", "c"}, wantMatching: []string{"a", "c"}, wantScore: 67},
		{name: "duplicate requirement tags", volunteer: []string{"a"}, event: []string{"a", "a", "b"}, wantMatching: []string{"a"}, wantScore: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matching, score := Score(tt.volunteer, tt.event)
			assert.Equal(t, tt.wantMatching, matching)
			assert.Equal(t, tt.wantScore, score)
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	required := []string{"a", "b", "c", "d", "e"}
	prev := -1
	for n := 0; n <= len(required); n++ {
		_, score := Score(required[:n], required)
		assert.Greater(t, score, prev)
		prev = score
	}
	assert.Equal(t, 100, prev)
}

func TestLedger(t *testing.T) {
	event := &models.Event{
		RequiredVolunteers: 2,
		AssignedVolunteers: []models.Assignment{
			{Status: models.AssignmentAssigned},
			{Status: models.AssignmentCancelled},
			{Status: models.AssignmentConfirmed},
		},
	}
	ledger := LedgerFor(event)
	assert.Equal(t, 2, ledger.ActiveCount)
	assert.Equal(t, 0, ledger.Remaining())
	assert.True(t, ledger.IsFull())

	event.RequiredVolunteers = 1
	assert.Equal(t, -1, LedgerFor(event).Remaining())
	assert.True(t, LedgerFor(event).IsFull())

	event.RequiredVolunteers = 5
	assert.False(t, LedgerFor(event).IsFull())
}

type fakeSource struct {
	events     map[primitive.ObjectID]*models.Event
	volunteers []models.User
	err        error
}

func (f *fakeSource) GetEvent(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.Clone(), nil
}

func (f *fakeSource) ListMatchableVolunteers(context.Context) ([]models.User, error) {
	return f.volunteers, nil
}

func volunteer(name string, skills ...string) models.User {
	return models.User{
		ID:         primitive.NewObjectID(),
		Email:      name + "@example.org",
		Role:       models.RoleVolunteer,
		IsComplete: true,
		Profile:    models.Profile{FullName: name, Skills: skills},
	}
}

func TestRankOrdersByCoverage(t *testing.T) {
	a := volunteer("A", "First Aid")
	b := volunteer("B", "First Aid", "CPR", "Driving")
	event := &models.Event{
		ID:                 primitive.NewObjectID(),
		Title:              "Clinic",
		Date:               time.Now().Add(24 * time.Hour),
		Skills:             []string{"First Aid", "CPR"},
		RequiredVolunteers: 3,
		Status:             models.EventStatusActive,
	}
	src := &fakeSource{events: map[primitive.ObjectID]*models.Event{event.ID: event}, volunteers: []models.User{a, b}}

	result, err := NewRanker(src, src).Rank(context.Background(), event.ID)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, b.ID, result.Matches[0].VolunteerID)
	assert.Equal(t, 100, result.Matches[0].Score)
	assert.Equal(t, a.ID, result.Matches[1].VolunteerID)
	assert.Equal(t, 50, result.Matches[1].Score)
	assert.Equal(t, 3, result.VolunteersNeeded)
	assert.Equal(t, "Clinic", result.Event.Title)
}

func TestRankTruncatesToRemaining(t *testing.T) {
	pool := []models.User{
		volunteer("A", "x"), volunteer("B", "x"), volunteer("C", "x"), volunteer("D", "x"),
	}
	held := pool[0]
	event := &models.Event{
		ID:                 primitive.NewObjectID(),
		Skills:             []string{"x"},
		RequiredVolunteers: 2,
		Status:             models.EventStatusActive,
		AssignedVolunteers: []models.Assignment{{VolunteerID: held.ID, Status: models.AssignmentAssigned}},
	}
	src := &fakeSource{events: map[primitive.ObjectID]*models.Event{event.ID: event}, volunteers: pool}

	result, err := NewRanker(src, src).Rank(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.VolunteersNeeded)
	require.Len(t, result.Matches, 1)
	assert.NotEqual(t, held.ID, result.Matches[0].VolunteerID)
}

func TestRankCancelledAssignmentIsEligibleAgain(t *testing.T) {
	v := volunteer("A", "x")
	event := &models.Event{
		Skills:             []string{"x"},
		RequiredVolunteers: 1,
		Status:             models.EventStatusActive,
		AssignedVolunteers: []models.Assignment{{VolunteerID: v.ID, Status: models.AssignmentCancelled}},
	}
	matches := RankCandidates(event, []models.User{v}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, v.ID, matches[0].VolunteerID)
}

func TestRankCandidatesExcludesZeroScoreAndBreaksTiesById(t *testing.T) {
	pool := []models.User{volunteer("A", "x"), volunteer("B", "x"), volunteer("C", "y")}
	// Object ids are increasing, so reversing the pool checks the tie-break
	// does not depend on input order.
	reversed := []models.User{pool[2], pool[1], pool[0]}
	event := &models.Event{Skills: []string{"x"}, RequiredVolunteers: 10, Status: models.EventStatusActive}

	matches := RankCandidates(event, reversed, 10)
	require.Len(t, matches, 2)
	assert.Equal(t, pool[0].ID, matches[0].VolunteerID)
	assert.Equal(t, pool[1].ID, matches[1].VolunteerID)

	assert.Empty(t, RankCandidates(event, reversed, 0))
	assert.Empty(t, RankCandidates(event, reversed, -3))
}

func TestRankClosedEventSuggestsNothing(t *testing.T) {
	event := &models.Event{
		ID:                 primitive.NewObjectID(),
		Skills:             []string{"x"},
		RequiredVolunteers: 2,
		Status:             models.EventStatusCancelled,
	}
	src := &fakeSource{events: map[primitive.ObjectID]*models.Event{event.ID: event}, volunteers: []models.User{volunteer("A", "x")}}

	result, err := NewRanker(src, src).Rank(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Equal(t, 0, result.VolunteersNeeded)
}

func TestRankErrors(t *testing.T) {
	src := &fakeSource{events: map[primitive.ObjectID]*models.Event{}}
	_, err := NewRanker(src, src).Rank(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

	src.err = context.DeadlineExceeded
	_, err = NewRanker(src, src).Rank(context.Background(), primitive.NewObjectID())
	assert.Equal(t, apperrors.CodeStoreUnavailable, apperrors.CodeOf(err))

	src.err = errors.New("boom")
	_, err = NewRanker(src, src).Rank(context.Background(), primitive.NewObjectID())
	assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(err))
}
