package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventGetter is the slice of the event store the ranker reads.
type EventGetter interface {
	GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
}

// VolunteerLister returns matchable volunteers ordered by id.
type VolunteerLister interface {
	ListMatchableVolunteers(ctx context.Context) ([]models.User, error)
}

type EventSummary struct {
	ID                 primitive.ObjectID `json:"id"`
	Title              string             `json:"title"`
	Date               time.Time          `json:"date"`
	Status             string             `json:"status"`
	Skills             []string           `json:"skills"`
	RequiredVolunteers int                `json:"requiredVolunteers"`
	CurrentVolunteers  int                `json:"currentVolunteers"`
}

type Match struct {
	VolunteerID    primitive.ObjectID `json:"volunteerId"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	Skills         []string           `json:"skills"`
	MatchingSkills []string           `json:"matchingSkills"`
	Score          int                `json:"score"`
}

// Result is the auto-match answer for one event.
type Result struct {
	Event            EventSummary `json:"event"`
	Matches          []Match      `json:"matches"`
	VolunteersNeeded int          `json:"volunteersNeeded"`
}

type Ranker struct {
	events     EventGetter
	volunteers VolunteerLister
}

func NewRanker(events EventGetter, volunteers VolunteerLister) *Ranker {
	return &Ranker{events: events, volunteers: volunteers}
}

// Rank loads the event and the volunteer pool and returns ranked suggestions.
// It never mutates state; committing a match goes through the assignment
// service.
func (r *Ranker) Rank(ctx context.Context, eventID primitive.ObjectID) (*Result, error) {
	event, err := r.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, apperrors.From(err)
	}

	ledger := LedgerFor(event)
	result := &Result{
		Event: EventSummary{
			ID:                 event.ID,
			Title:              event.Title,
			Date:               event.Date,
			Status:             event.Status,
			Skills:             event.Skills,
			RequiredVolunteers: event.RequiredVolunteers,
			CurrentVolunteers:  ledger.ActiveCount,
		},
		Matches: []Match{},
	}

	// Closed events take no new assignments, so there is nothing to suggest.
	if !event.AcceptsVolunteers() {
		return result, nil
	}
	result.VolunteersNeeded = max(ledger.Remaining(), 0)
	if result.VolunteersNeeded == 0 {
		return result, nil
	}

	pool, err := r.volunteers.ListMatchableVolunteers(ctx)
	if err != nil {
		return nil, apperrors.From(err)
	}

	result.Matches = RankCandidates(event, pool, result.VolunteersNeeded)
	return result, nil
}

// RankCandidates scores pool against event and returns at most limit
// matches. Volunteers with an active assignment and zero scores are
// dropped. Ties keep ascending volunteer id order.
func RankCandidates(event *models.Event, pool []models.User, limit int) []Match {
	matches := make([]Match, 0, len(pool))
	for i := range pool {
		v := &pool[i]
		if !v.IsMatchable() || event.ActiveAssignment(v.ID) >= 0 {
			continue
		}
		matching, score := Score(v.Profile.Skills, event.Skills)
		if score == 0 {
			continue
		}
		matches = append(matches, Match{
			VolunteerID:    v.ID,
			Name:           v.DisplayName(),
			Email:          v.Email,
			Skills:         v.Profile.Skills,
			MatchingSkills: matching,
			Score:          score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].VolunteerID.Hex() < matches[j].VolunteerID.Hex()
	})

	if limit < 0 {
		limit = 0
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
