// Package boltstore is the embedded storage backend. Every write runs in a
// bbolt read-write transaction, and bbolt allows only one of those at a
// time, so the version check in UpdateEvent is a true compare-and-swap.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	bucketEvents        = []byte("events")
	bucketUsers         = []byte("users")
	bucketNotifications = []byte("notifications")
	bucketDeviceTokens  = []byte("device_tokens")
	bucketHistory       = []byte("volunteer_history")
)

// Store implements storage.Store on top of bbolt.
type Store struct {
	db *bolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open creates or opens the database file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketUsers, bucketNotifications, bucketDeviceTokens, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func put(b *bolt.Bucket, id primitive.ObjectID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id.Hex()), data)
}

func get(b *bolt.Bucket, id primitive.ObjectID, v any) error {
	data := b.Get([]byte(id.Hex()))
	if data == nil {
		return storage.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func each[T any](b *bolt.Bucket, fn func(*T) error) error {
	return b.ForEach(func(_, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		return fn(&item)
	})
}

// Event operations

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketEvents), event.ID, event)
	})
}

func (s *Store) GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var event models.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketEvents), id, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event *models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		var current models.Event
		if err := get(b, event.ID, &current); err != nil {
			return err
		}
		if current.Version != event.Version {
			return storage.ErrVersionConflict
		}

		next := event.Clone()
		next.Version++
		if err := put(b, next.ID, next); err != nil {
			return err
		}
		event.Version = next.Version
		return nil
	})
}

func (s *Store) ListEventsNeedingVolunteers(ctx context.Context, now time.Time) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []models.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketEvents), func(e *models.Event) error {
			if e.Status == models.EventStatusActive && !e.Date.Before(now) && !matching.LedgerFor(e).IsFull() {
				events = append(events, *e)
			}
			return nil
		})
	})
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events, err
}

func (s *Store) EventStats(ctx context.Context) (models.EventStats, error) {
	var stats models.EventStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketEvents), func(e *models.Event) error {
			stats.TotalEvents++
			switch e.Status {
			case models.EventStatusActive:
				stats.ActiveEvents++
			case models.EventStatusCompleted:
				stats.CompletedEvents++
			}
			stats.TotalVolunteersAssigned += matching.LedgerFor(e).ActiveCount
			return nil
		})
	})
	return stats, err
}

// User operations

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketUsers), user.ID, user)
	})
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketUsers), id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListMatchableVolunteers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []models.User
	// Keys are hex object ids, so ForEach already yields id order.
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketUsers), func(u *models.User) error {
			if u.IsMatchable() {
				users = append(users, *u)
			}
			return nil
		})
	})
	return users, err
}

func (s *Store) ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []primitive.ObjectID
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketUsers), func(u *models.User) error {
			if u.Role == role {
				ids = append(ids, u.ID)
			}
			return nil
		})
	})
	return ids, err
}
