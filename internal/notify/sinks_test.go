package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeSender struct {
	recipient primitive.ObjectID
	msgType   string
	data      any
}

func (f *fakeSender) SendTo(recipientID primitive.ObjectID, msgType string, data any) (int, error) {
	f.recipient, f.msgType, f.data = recipientID, msgType, data
	return 1, nil
}

func TestHubSink(t *testing.T) {
	sender := &fakeSender{}
	sink := NewHubSink(sender)
	n := &models.Notification{ID: primitive.NewObjectID(), RecipientID: primitive.NewObjectID(), Message: "hi"}

	require.NoError(t, sink.Push(context.Background(), n))
	assert.Equal(t, n.RecipientID, sender.recipient)
	assert.Equal(t, MessageNewNotification, sender.msgType)
	assert.Same(t, n, sender.data)
}

func TestFCMSinkSendsAndPrunesTokens(t *testing.T) {
	var got FCMMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(FCMResponse{
			Success: 1,
			Failure: 2,
			Results: []FCMResult{
				{MessageID: "m1"},
				{Error: "NotRegistered"},
				{MessageID: "m3", RegistrationID: "token-c-canonical"},
			},
		})
	}))
	defer srv.Close()

	store := openStore(t)
	ctx := context.Background()
	user := primitive.NewObjectID()
	for _, token := range []string{"token-a", "token-b", "token-c"} {
		require.NoError(t, store.UpsertDeviceToken(ctx, &models.DeviceToken{UserID: user, FCMToken: token, IsActive: true}))
	}

	sink := NewFCMSink(srv.URL, "server-key", time.Second, store, logger.Nop())
	eventID := primitive.NewObjectID()
	n := &models.Notification{
		ID:          primitive.NewObjectID(),
		RecipientID: user,
		Message:     "You have been assigned",
		Type:        models.NotificationAssignment,
		EventID:     &eventID,
	}
	require.NoError(t, sink.Push(ctx, n))

	assert.ElementsMatch(t, []string{"token-a", "token-b", "token-c"}, got.RegistrationIDs)
	assert.Equal(t, "You have been assigned", got.Notification.Body)
	assert.Equal(t, "New assignment", got.Notification.Title)
	assert.Equal(t, eventID.Hex(), got.Data["event_id"])

	tokens, err := store.ListActiveDeviceTokens(ctx, user)
	require.NoError(t, err)
	assert.NotContains(t, tokens, "token-b")
	assert.NotContains(t, tokens, "token-c")
	assert.Contains(t, tokens, "token-a")
	assert.Contains(t, tokens, "token-c-canonical")
}

func TestFCMSinkNoTokensSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	sink := NewFCMSink(srv.URL, "k", time.Second, openStore(t), logger.Nop())
	require.NoError(t, sink.Push(context.Background(), &models.Notification{RecipientID: primitive.NewObjectID()}))
	assert.False(t, called)
}

func TestFCMSinkHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := openStore(t)
	user := primitive.NewObjectID()
	require.NoError(t, store.UpsertDeviceToken(context.Background(), &models.DeviceToken{UserID: user, FCMToken: "t", IsActive: true}))

	sink := NewFCMSink(srv.URL, "bad", time.Second, store, logger.Nop())
	err := sink.Push(context.Background(), &models.Notification{RecipientID: user, Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
