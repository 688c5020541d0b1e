package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Notification struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	RecipientID   primitive.ObjectID  `bson:"recipient_id" json:"recipientId"`
	RecipientType UserRole            `bson:"recipient_type" json:"recipientType"`
	Message       string              `bson:"message" json:"message"`
	Type          string              `bson:"type" json:"type"`
	EventID       *primitive.ObjectID `bson:"event_id,omitempty" json:"eventId,omitempty"`
	IsRead        bool                `bson:"is_read" json:"isRead"`
	ReadAt        *time.Time          `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"createdAt"`
}

// Типи сповіщень
const (
	NotificationAssignment = "assignment"
	NotificationReminder   = "reminder"
	NotificationInfo       = "info"
	NotificationWarning    = "warning"
	NotificationSuccess    = "success"
)

func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationAssignment, NotificationReminder, NotificationInfo, NotificationWarning, NotificationSuccess:
		return true
	}
	return false
}

// DeviceToken is a registered FCM token for mobile/web push.
type DeviceToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	FCMToken  string             `bson:"fcm_token" json:"fcmToken"`
	Platform  string             `bson:"platform" json:"platform"` // android, ios, web
	IsActive  bool               `bson:"is_active" json:"isActive"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}
