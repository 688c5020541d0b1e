// internal/handlers/notification.go
package handlers

import (
	"fmt"
	"net/http"

	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/notify"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

type RegisterDeviceTokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required,max=4096"`
	Platform string `json:"platform" binding:"required,oneof=android ios web"`
}

type UnregisterDeviceTokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required"`
}

type SendNotificationRequest struct {
	RecipientID   string `json:"recipientId" binding:"required,objectid"`
	RecipientType string `json:"recipientType" binding:"required,oneof=volunteer admin"`
	Message       string `json:"message" binding:"required,max=500"`
	Type          string `json:"type" binding:"omitempty,oneof=assignment reminder info warning success"`
	EventID       string `json:"eventId" binding:"omitempty,objectid"`
}

type BroadcastNotificationRequest struct {
	RecipientType string `json:"recipientType" binding:"required,oneof=volunteer admin"`
	Message       string `json:"message" binding:"required,max=500"`
	Type          string `json:"type" binding:"omitempty,oneof=assignment reminder info warning success"`
	EventID       string `json:"eventId" binding:"omitempty,objectid"`
}

type NotificationQuery struct {
	Limit      int  `form:"limit" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

func optionalID(s string) *primitive.ObjectID {
	if s == "" {
		return nil
	}
	id := mustObjectID(s)
	return &id
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	var q NotificationQuery
	if !bindQuery(c, &q) {
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.dispatcher.ListFor(ctx, userID, q.Limit, q.UnreadOnly)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	count, err := h.dispatcher.UnreadCount(ctx, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// SendNotification creates one notification (admin only).
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.dispatcher.Notify(ctx, notify.Request{
		RecipientID:   mustObjectID(req.RecipientID),
		RecipientRole: models.UserRole(req.RecipientType),
		Message:       req.Message,
		Category:      req.Type,
		EventID:       optionalID(req.EventID),
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// Broadcast notifies every user of a role (admin only).
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req BroadcastNotificationRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	count, err := h.dispatcher.Broadcast(ctx, models.UserRole(req.RecipientType), req.Message, req.Type, optionalID(req.EventID))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Notification sent to %d %ss", count, req.RecipientType),
		"count":   count,
	})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.dispatcher.MarkRead(ctx, id, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	modified, err := h.dispatcher.MarkAllRead(ctx, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "All notifications marked as read",
		"modifiedCount": modified,
	})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.dispatcher.Delete(ctx, id, userID); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
}

func (h *NotificationHandler) RegisterDeviceToken(c *gin.Context) {
	var req RegisterDeviceTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	token, err := h.dispatcher.RegisterDevice(ctx, userID, req.FCMToken, req.Platform)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *NotificationHandler) UnregisterDeviceToken(c *gin.Context) {
	var req UnregisterDeviceTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.dispatcher.UnregisterDevice(ctx, req.FCMToken); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device token unregistered"})
}
