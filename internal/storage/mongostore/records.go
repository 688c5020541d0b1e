package mongostore

import (
	"context"
	"time"

	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Notification operations

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	_, err := s.notifications.InsertOne(ctx, n)
	return mapErr(err)
}

func (s *Store) ListNotifications(ctx context.Context, recipientID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"recipient_id": recipientID}
	if unreadOnly {
		filter["is_read"] = false
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var out []models.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID primitive.ObjectID, at time.Time) (*models.Notification, error) {
	filter := bson.M{"_id": id, "recipient_id": recipientID}

	// Only unread documents get a read_at; an already-read one is returned as is.
	_, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return nil, mapErr(err)
	}

	var n models.Notification
	if err := s.notifications.FindOne(ctx, filter).Decode(&n); err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID primitive.ObjectID, at time.Time) (int64, error) {
	result, err := s.notifications.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return result.ModifiedCount, nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	count, err := s.notifications.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
	return count, mapErr(err)
}

func (s *Store) DeleteNotification(ctx context.Context, id, recipientID primitive.ObjectID) error {
	result, err := s.notifications.DeleteOne(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return mapErr(err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Device token operations

func (s *Store) UpsertDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	result, err := s.deviceTokens.UpdateOne(ctx,
		bson.M{"fcm_token": token.FCMToken},
		bson.M{
			"$set": bson.M{
				"user_id":    token.UserID,
				"platform":   token.Platform,
				"is_active":  token.IsActive,
				"updated_at": token.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": token.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mapErr(err)
	}
	if id, ok := result.UpsertedID.(primitive.ObjectID); ok {
		token.ID = id
	}
	return nil
}

func (s *Store) ListActiveDeviceTokens(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	cursor, err := s.deviceTokens.Find(ctx, bson.M{"user_id": userID, "is_active": true})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var tokens []string
	for cursor.Next(ctx) {
		var deviceToken models.DeviceToken
		if err := cursor.Decode(&deviceToken); err != nil {
			continue
		}
		tokens = append(tokens, deviceToken.FCMToken)
	}
	return tokens, mapErr(cursor.Err())
}

func (s *Store) DeactivateDeviceToken(ctx context.Context, fcmToken string) error {
	_, err := s.deviceTokens.UpdateMany(ctx,
		bson.M{"fcm_token": fcmToken},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now()}},
	)
	return mapErr(err)
}

// History operations

func (s *Store) CreateHistory(ctx context.Context, record *models.HistoryRecord) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	_, err := s.history.InsertOne(ctx, record)
	return mapErr(err)
}

func (s *Store) LatestHistory(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "assigned_date", Value: -1}, {Key: "_id", Value: -1}})

	var record models.HistoryRecord
	err := s.history.FindOne(ctx, bson.M{"volunteer_id": volunteerID, "event_id": eventID}, opts).Decode(&record)
	if err != nil {
		return nil, mapErr(err)
	}
	return &record, nil
}

func (s *Store) UpdateHistory(ctx context.Context, record *models.HistoryRecord) error {
	result, err := s.history.ReplaceOne(ctx, bson.M{"_id": record.ID}, record)
	if err != nil {
		return mapErr(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	query := bson.M{}
	if filter.VolunteerID != nil {
		query["volunteer_id"] = *filter.VolunteerID
	}
	if filter.EventID != nil {
		query["event_id"] = *filter.EventID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.From != nil || filter.To != nil {
		dateRange := bson.M{}
		if filter.From != nil {
			dateRange["$gte"] = *filter.From
		}
		if filter.To != nil {
			dateRange["$lte"] = *filter.To
		}
		query["event_date"] = dateRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "event_date", Value: -1}, {Key: "assigned_date", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.history.Find(ctx, query, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var out []models.HistoryRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
