package boltstore

import (
	"context"
	"sort"
	"time"

	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification operations

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		if b.Get([]byte(n.ID.Hex())) != nil {
			return storage.ErrDuplicate
		}
		return put(b, n.ID, n)
	})
}

func (s *Store) ListNotifications(ctx context.Context, recipientID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketNotifications), func(n *models.Notification) error {
			if n.RecipientID == recipientID && (!unreadOnly || !n.IsRead) {
				out = append(out, *n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Newest first; object ids break ties between equal timestamps.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID primitive.ObjectID, at time.Time) (*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var n models.Notification
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		if err := get(b, id, &n); err != nil {
			return err
		}
		if n.RecipientID != recipientID {
			return storage.ErrNotFound
		}
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		n.ReadAt = &at
		return put(b, n.ID, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID primitive.ObjectID, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var modified int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		var pending []models.Notification
		if err := each(b, func(n *models.Notification) error {
			if n.RecipientID == recipientID && !n.IsRead {
				pending = append(pending, *n)
			}
			return nil
		}); err != nil {
			return err
		}
		// Writes happen after the scan; bbolt forbids mutating during ForEach.
		for i := range pending {
			pending[i].IsRead = true
			pending[i].ReadAt = &at
			if err := put(b, pending[i].ID, &pending[i]); err != nil {
				return err
			}
			modified++
		}
		return nil
	})
	return modified, err
}

func (s *Store) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketNotifications), func(n *models.Notification) error {
			if n.RecipientID == recipientID && !n.IsRead {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (s *Store) DeleteNotification(ctx context.Context, id, recipientID primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		var n models.Notification
		if err := get(b, id, &n); err != nil {
			return err
		}
		if n.RecipientID != recipientID {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id.Hex()))
	})
}

// Device token operations

func (s *Store) UpsertDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeviceTokens)
		var existing *models.DeviceToken
		if err := each(b, func(t *models.DeviceToken) error {
			if t.FCMToken == token.FCMToken {
				existing = t
			}
			return nil
		}); err != nil {
			return err
		}
		if existing != nil {
			token.ID = existing.ID
			token.CreatedAt = existing.CreatedAt
		} else if token.ID.IsZero() {
			token.ID = primitive.NewObjectID()
		}
		return put(b, token.ID, token)
	})
}

func (s *Store) ListActiveDeviceTokens(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tokens []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketDeviceTokens), func(t *models.DeviceToken) error {
			if t.UserID == userID && t.IsActive {
				tokens = append(tokens, t.FCMToken)
			}
			return nil
		})
	})
	return tokens, err
}

func (s *Store) DeactivateDeviceToken(ctx context.Context, fcmToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeviceTokens)
		var matched []models.DeviceToken
		if err := each(b, func(t *models.DeviceToken) error {
			if t.FCMToken == fcmToken {
				matched = append(matched, *t)
			}
			return nil
		}); err != nil {
			return err
		}
		for i := range matched {
			matched[i].IsActive = false
			matched[i].UpdatedAt = time.Now()
			if err := put(b, matched[i].ID, &matched[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// History operations

func (s *Store) CreateHistory(ctx context.Context, record *models.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b.Get([]byte(record.ID.Hex())) != nil {
			return storage.ErrDuplicate
		}
		return put(b, record.ID, record)
	})
}

func (s *Store) LatestHistory(ctx context.Context, volunteerID, eventID primitive.ObjectID) (*models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var latest *models.HistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketHistory), func(r *models.HistoryRecord) error {
			if r.VolunteerID != volunteerID || r.EventID != eventID {
				return nil
			}
			if latest == nil || newerHistory(r, latest) {
				latest = r
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

func newerHistory(a, b *models.HistoryRecord) bool {
	if a.AssignedDate.Equal(b.AssignedDate) {
		return a.ID.Hex() > b.ID.Hex()
	}
	return a.AssignedDate.After(b.AssignedDate)
}

func (s *Store) UpdateHistory(ctx context.Context, record *models.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b.Get([]byte(record.ID.Hex())) == nil {
			return storage.ErrNotFound
		}
		return put(b, record.ID, record)
	})
}

func (s *Store) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.HistoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketHistory), func(r *models.HistoryRecord) error {
			if matchesHistory(r, filter) {
				out = append(out, *r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].AssignedDate.Before(out[j].AssignedDate)
		}
		return out[i].EventDate.After(out[j].EventDate)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesHistory(r *models.HistoryRecord, f models.HistoryFilter) bool {
	if f.VolunteerID != nil && r.VolunteerID != *f.VolunteerID {
		return false
	}
	if f.EventID != nil && r.EventID != *f.EventID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.From != nil && r.EventDate.Before(*f.From) {
		return false
	}
	if f.To != nil && r.EventDate.After(*f.To) {
		return false
	}
	return true
}
