// internal/handlers/event.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/assignment"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	events  storage.EventStore
	service *assignment.Service
}

type CreateEventRequest struct {
	Title              string    `json:"title" binding:"required,min=3,max=100"`
	Description        string    `json:"description" binding:"required,max=2000"`
	Location           string    `json:"location" binding:"required,max=200"`
	Date               time.Time `json:"date" binding:"required"`
	Skills             []string  `json:"skills" binding:"required,min=1,dive,required,max=50"`
	Urgency            string    `json:"urgency" binding:"required,oneof=Low Medium High"`
	RequiredVolunteers int       `json:"requiredVolunteers" binding:"required,min=1,max=1000"`
}

type UpdateEventStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=Active Completed Cancelled"`
}

type AssignVolunteerRequest struct {
	VolunteerID   string `json:"volunteerId" binding:"required,objectid"`
	VolunteerName string `json:"volunteerName" binding:"max=100"`
}

type RemoveVolunteerRequest struct {
	VolunteerID string `json:"volunteerId" binding:"required,objectid"`
	Reason      string `json:"reason" binding:"max=500"`
}

func NewEventHandler(events storage.EventStore, service *assignment.Service) *EventHandler {
	return &EventHandler{
		events:  events,
		service: service,
	}
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	event := &models.Event{
		Title:              req.Title,
		Description:        req.Description,
		Location:           req.Location,
		Date:               req.Date,
		Skills:             req.Skills,
		Urgency:            req.Urgency,
		RequiredVolunteers: req.RequiredVolunteers,
		CreatedBy:          userID,
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.service.CreateEvent(ctx, event); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	event, err := h.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperrors.ErrEventNotFound
		}
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) UpdateEventStatus(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateEventStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	event, err := h.service.SetEventStatus(ctx, eventID, req.Status)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetEventsNeedingVolunteers lists upcoming active events with free seats.
func (h *EventHandler) GetEventsNeedingVolunteers(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	events, err := h.events.ListEventsNeedingVolunteers(ctx, time.Now())
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) GetEventStats(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.events.EventStats(ctx)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *EventHandler) AssignVolunteer(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignVolunteerRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	event, err := h.service.Assign(ctx, eventID, mustObjectID(req.VolunteerID), req.VolunteerName)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Volunteer assigned successfully",
		"event":   event,
	})
}

func (h *EventHandler) RemoveVolunteer(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RemoveVolunteerRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	event, err := h.service.Remove(ctx, eventID, mustObjectID(req.VolunteerID), req.Reason)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Volunteer removed successfully",
		"event":   event,
	})
}
