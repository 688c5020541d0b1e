package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"volunteer-coordination/internal/assignment"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/pkg/validator"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML document accepted by `seed load`.
type Fixtures struct {
	Users  []UserFixture  `yaml:"users" validate:"dive"`
	Events []EventFixture `yaml:"events" validate:"dive"`
}

type UserFixture struct {
	ID      string         `yaml:"id" validate:"omitempty,objectid"`
	Email   string         `yaml:"email" validate:"required,email"`
	Role    string         `yaml:"role" validate:"required,oneof=volunteer admin"`
	Profile models.Profile `yaml:"profile"`
}

// EventFixture dates are either absolute or relative to the load time, so a
// fixture file keeps producing future events.
type EventFixture struct {
	Title              string     `yaml:"title" validate:"required,min=3,max=100"`
	Description        string     `yaml:"description" validate:"max=2000"`
	Location           string     `yaml:"location" validate:"required,max=200"`
	Date               *time.Time `yaml:"date"`
	InDays             int        `yaml:"inDays" validate:"gte=0"`
	Skills             []string   `yaml:"skills" validate:"required,min=1"`
	Urgency            string     `yaml:"urgency" validate:"required,oneof=Low Medium High"`
	RequiredVolunteers int        `yaml:"requiredVolunteers" validate:"required,min=1"`
}

func ParseFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := validator.Struct(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UserStore is the slice of storage the loader writes users through.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

type LoadResult struct {
	Users  []models.User
	Events []models.Event
}

type discard struct{}

func (discard) Publish(events.Event) {}

// Load writes users first, then creates events through the assignment
// service so they get the same validation as the API.
func Load(ctx context.Context, f *Fixtures, users UserStore, eventStore assignment.Store, now time.Time) (*LoadResult, error) {
	result := &LoadResult{}

	for _, uf := range f.Users {
		u := models.User{
			Email:      uf.Email,
			Role:       models.UserRole(uf.Role),
			Profile:    uf.Profile,
			IsComplete: uf.Profile.CheckProfileComplete(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if uf.ID != "" {
			u.ID, _ = primitive.ObjectIDFromHex(uf.ID)
		}
		if err := users.UpsertUser(ctx, &u); err != nil {
			return result, fmt.Errorf("user %s: %w", uf.Email, err)
		}
		result.Users = append(result.Users, u)
	}

	svc := assignment.NewService(eventStore, discard{}, assignment.Config{
		Logger: logger.Logger,
		Now:    func() time.Time { return now },
	})
	for _, ef := range f.Events {
		e := models.Event{
			Title:              ef.Title,
			Description:        ef.Description,
			Location:           ef.Location,
			Skills:             ef.Skills,
			Urgency:            ef.Urgency,
			RequiredVolunteers: ef.RequiredVolunteers,
		}
		if ef.Date != nil {
			e.Date = *ef.Date
		} else {
			e.Date = now.AddDate(0, 0, max(ef.InDays, 1))
		}
		if err := svc.CreateEvent(ctx, &e); err != nil {
			return result, fmt.Errorf("event %q: %w", ef.Title, err)
		}
		result.Events = append(result.Events, e)
	}
	return result, nil
}
