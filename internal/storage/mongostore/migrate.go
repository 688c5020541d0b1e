package mongostore

import (
	"context"
	"fmt"

	"volunteer-coordination/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MigrationResult counts the documents each backfill touched.
type MigrationResult struct {
	Roles       int64
	Versions    int64
	Assignments int64
}

type backfill struct {
	coll   func(s *Store) *mongo.Collection
	filter bson.M
	update any
	count  func(r *MigrationResult) *int64
}

// Profiles written before roles existed carry an is_admin flag instead.
var roleBackfill = backfill{
	coll: func(s *Store) *mongo.Collection { return s.users },
	filter: bson.M{"$or": []bson.M{
		{"user_type": bson.M{"$exists": false}},
		{"user_type": ""},
	}},
	update: []bson.M{{"$set": bson.M{
		"user_type": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$is_admin", true}},
			string(models.RoleAdmin),
			string(models.RoleVolunteer),
		}},
	}}},
	count: func(r *MigrationResult) *int64 { return &r.Roles },
}

// Events without a version never match the {_id, version} update filter.
var versionBackfill = backfill{
	coll:   func(s *Store) *mongo.Collection { return s.events },
	filter: bson.M{"version": bson.M{"$exists": false}},
	update: bson.M{"$set": bson.M{"version": int64(0)}},
	count:  func(r *MigrationResult) *int64 { return &r.Versions },
}

var assignmentsBackfill = backfill{
	coll: func(s *Store) *mongo.Collection { return s.events },
	filter: bson.M{"$or": []bson.M{
		{"assigned_volunteers": bson.M{"$exists": false}},
		{"assigned_volunteers": nil},
	}},
	update: bson.M{"$set": bson.M{"assigned_volunteers": bson.A{}}},
	count:  func(r *MigrationResult) *int64 { return &r.Assignments },
}

// Migrate brings documents written by older releases up to the current
// shape. It is idempotent.
func (s *Store) Migrate(ctx context.Context) (MigrationResult, error) {
	var result MigrationResult
	for _, b := range []backfill{roleBackfill, versionBackfill, assignmentsBackfill} {
		coll := b.coll(s)
		res, err := coll.UpdateMany(ctx, b.filter, b.update)
		if err != nil {
			return result, fmt.Errorf("migrate %s: %w", coll.Name(), mapErr(err))
		}
		*b.count(&result) = res.ModifiedCount
	}
	return result, nil
}
