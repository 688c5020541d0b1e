package notify

import (
	"context"
	"fmt"
	"time"

	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageNewNotification is the websocket frame type of a pushed notification.
const MessageNewNotification = "new_notification"

// Sender is the part of the websocket hub the dispatcher needs.
type Sender interface {
	SendTo(recipientID primitive.ObjectID, msgType string, data any) (int, error)
}

// HubSink pushes notifications to the recipient's live sessions.
type HubSink struct {
	hub Sender
}

func NewHubSink(hub Sender) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Push(_ context.Context, n *models.Notification) error {
	_, err := s.hub.SendTo(n.RecipientID, MessageNewNotification, n)
	return err
}

const (
	DefaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

	// FCM accepts at most this many registration ids per request.
	fcmBatchSize = 1000
)

type FCMMessage struct {
	To              string            `json:"to,omitempty"`
	RegistrationIDs []string          `json:"registration_ids,omitempty"`
	Notification    FCMNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
	Priority        string            `json:"priority"`
	TimeToLive      int               `json:"time_to_live,omitempty"`
}

type FCMNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Sound string `json:"sound,omitempty"`
	Color string `json:"color,omitempty"`
}

type FCMResponse struct {
	MulticastID  int64       `json:"multicast_id"`
	Success      int         `json:"success"`
	Failure      int         `json:"failure"`
	CanonicalIDs int         `json:"canonical_ids"`
	Results      []FCMResult `json:"results"`
}

type FCMResult struct {
	MessageID      string `json:"message_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// FCMSink sends device pushes through the legacy FCM HTTP API.
type FCMSink struct {
	client   *resty.Client
	endpoint string
	tokens   storage.DeviceTokenStore
	log      zerolog.Logger
}

func NewFCMSink(endpoint, serverKey string, timeout time.Duration, tokens storage.DeviceTokenStore, log zerolog.Logger) *FCMSink {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+serverKey)

	return &FCMSink{
		client:   client,
		endpoint: endpoint,
		tokens:   tokens,
		log:      log.With().Str("component", "fcm").Logger(),
	}
}

func (s *FCMSink) Name() string { return "fcm" }

func (s *FCMSink) Push(ctx context.Context, n *models.Notification) error {
	tokens, err := s.tokens.ListActiveDeviceTokens(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to get device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	data := map[string]string{
		"type":            n.Type,
		"notification_id": n.ID.Hex(),
	}
	if n.EventID != nil {
		data["event_id"] = n.EventID.Hex()
	}

	for i := 0; i < len(tokens); i += fcmBatchSize {
		end := min(i+fcmBatchSize, len(tokens))
		if err := s.sendBatch(ctx, tokens[i:end], n, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *FCMSink) sendBatch(ctx context.Context, tokens []string, n *models.Notification, data map[string]string) error {
	message := FCMMessage{
		RegistrationIDs: tokens,
		Notification: FCMNotification{
			Title: title(n.Type),
			Body:  n.Message,
			Icon:  "ic_notification",
			Sound: "default",
			Color: "#2196F3",
		},
		Data:       data,
		Priority:   "high",
		TimeToLive: 3600,
	}

	var result FCMResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(message).
		SetResult(&result).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to send FCM request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("FCM request failed with status: %d", resp.StatusCode())
	}

	s.handleResponse(ctx, n.RecipientID, result, tokens)
	return nil
}

// handleResponse deactivates tokens FCM no longer knows and swaps in
// canonical ids.
func (s *FCMSink) handleResponse(ctx context.Context, userID primitive.ObjectID, response FCMResponse, tokens []string) {
	for i, result := range response.Results {
		if i >= len(tokens) {
			break
		}
		token := tokens[i]

		if result.Error == "NotRegistered" || result.Error == "InvalidRegistration" {
			if err := s.tokens.DeactivateDeviceToken(ctx, token); err != nil {
				s.log.Warn().Err(err).Msg("Failed to deactivate device token")
			}
			continue
		}

		if result.RegistrationID != "" && result.RegistrationID != token {
			if err := s.tokens.DeactivateDeviceToken(ctx, token); err != nil {
				s.log.Warn().Err(err).Msg("Failed to deactivate device token")
				continue
			}
			now := time.Now()
			if err := s.tokens.UpsertDeviceToken(ctx, &models.DeviceToken{
				UserID:    userID,
				FCMToken:  result.RegistrationID,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				s.log.Warn().Err(err).Msg("Failed to store canonical device token")
			}
		}
	}
}

func title(category string) string {
	switch category {
	case models.NotificationAssignment:
		return "New assignment"
	case models.NotificationReminder:
		return "Reminder"
	case models.NotificationWarning:
		return "Assignment update"
	case models.NotificationSuccess:
		return "Thank you!"
	default:
		return "Volunteer update"
	}
}
