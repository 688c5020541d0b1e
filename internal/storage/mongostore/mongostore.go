// Package mongostore is the MongoDB storage backend. Event updates are
// filtered on {_id, version} so a concurrent writer's ReplaceOne matches
// nothing and surfaces as storage.ErrVersionConflict.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collEvents        = "events"
	collUsers         = "users"
	collNotifications = "notifications"
	collDeviceTokens  = "device_tokens"
	collHistory       = "volunteer_history"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database

	events        *mongo.Collection
	users         *mongo.Collection
	notifications *mongo.Collection
	deviceTokens  *mongo.Collection
	history       *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

// Connect dials MongoDB, pings the primary and ensures indexes exist.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		db:            db,
		events:        db.Collection(collEvents),
		users:         db.Collection(collUsers),
		notifications: db.Collection(collNotifications),
		deviceTokens:  db.Collection(collDeviceTokens),
		history:       db.Collection(collHistory),
	}

	if err := s.CreateIndexes(ctx); err != nil {
		return nil, err
	}

	logger.WithComponent("mongostore").Info().Str("database", database).Msg("Connected to MongoDB")
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.client.Ping(ctx, readpref.Primary()))
}

// CreateIndexes uses bson.D so that compound key order is preserved.
func (s *Store) CreateIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.events: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_volunteers.volunteer_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		s.users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_type", Value: 1}, {Key: "is_complete", Value: 1}}},
		},
		s.notifications: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "is_read", Value: 1}}},
		},
		s.deviceTokens: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "fcm_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.history: {
			{Keys: bson.D{{Key: "volunteer_id", Value: 1}, {Key: "event_date", Value: -1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
			{Keys: bson.D{{Key: "volunteer_id", Value: 1}, {Key: "event_id", Value: 1}, {Key: "assigned_date", Value: -1}}},
		},
	}

	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// mapErr translates driver errors into storage sentinels and marks
// timeouts and network failures as transient.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}

// Event operations

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	_, err := s.events.InsertOne(ctx, event)
	return mapErr(err)
}

func (s *Store) GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var event models.Event
	if err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		return nil, mapErr(err)
	}
	return &event, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event *models.Event) error {
	next := event.Clone()
	next.Version++

	result, err := s.events.ReplaceOne(ctx, bson.M{"_id": event.ID, "version": event.Version}, next)
	if err != nil {
		return mapErr(err)
	}
	if result.MatchedCount == 0 {
		count, err := s.events.CountDocuments(ctx, bson.M{"_id": event.ID})
		if err != nil {
			return mapErr(err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}

	event.Version = next.Version
	return nil
}

// activeCountExpr counts non-cancelled entries of assigned_volunteers.
var activeCountExpr = bson.M{"$size": bson.M{"$filter": bson.M{
	"input": bson.M{"$ifNull": bson.A{"$assigned_volunteers", bson.A{}}},
	"as":    "a",
	"cond":  bson.M{"$ne": bson.A{"$$a.status", models.AssignmentCancelled}},
}}}

func (s *Store) ListEventsNeedingVolunteers(ctx context.Context, now time.Time) ([]models.Event, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.EventStatusActive, "date": bson.M{"$gte": now}}}},
		{{Key: "$match", Value: bson.M{"$expr": bson.M{"$lt": bson.A{activeCountExpr, "$required_volunteers"}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}}}},
	}

	cursor, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, mapErr(err)
	}
	return events, nil
}

func (s *Store) EventStats(ctx context.Context) (models.EventStats, error) {
	var stats models.EventStats
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"total":       bson.M{"$sum": 1},
			"active":      bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.EventStatusActive}}, 1, 0}}},
			"completed":   bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.EventStatusCompleted}}, 1, 0}}},
			"assignments": bson.M{"$sum": activeCountExpr},
		}}},
	}

	cursor, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return stats, mapErr(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total       int `bson:"total"`
		Active      int `bson:"active"`
		Completed   int `bson:"completed"`
		Assignments int `bson:"assignments"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return stats, mapErr(err)
	}
	if len(rows) > 0 {
		stats.TotalEvents = rows[0].Total
		stats.ActiveEvents = rows[0].Active
		stats.CompletedEvents = rows[0].Completed
		stats.TotalVolunteersAssigned = rows[0].Assignments
	}
	return stats, nil
}

// User operations

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (s *Store) ListMatchableVolunteers(ctx context.Context) ([]models.User, error) {
	filter := bson.M{
		"user_type":        models.RoleVolunteer,
		"is_complete":      true,
		"profile.skills.0": bson.M{"$exists": true},
	}
	cursor, err := s.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, mapErr(err)
	}
	return users, nil
}

func (s *Store) ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]primitive.ObjectID, error) {
	cursor, err := s.users.Find(ctx, bson.M{"user_type": role}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		ids = append(ids, row.ID)
	}
	return ids, mapErr(cursor.Err())
}
