package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/assignment"
	"volunteer-coordination/internal/history"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// historyLookup resolves the volunteer and event a manual record refers to.
type historyLookup interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
}

type HistoryHandler struct {
	recorder *history.Recorder
	service  *assignment.Service
	lookup   historyLookup
}

type HistoryQuery struct {
	Status    string     `form:"status" binding:"omitempty,oneof=Assigned Confirmed Completed Cancelled No-Show"`
	StartDate *time.Time `form:"startDate" time_format:"2006-01-02"`
	EndDate   *time.Time `form:"endDate" time_format:"2006-01-02"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=500"`
}

// CreateHistoryRequest names and date default to the stored volunteer and
// event.
type CreateHistoryRequest struct {
	VolunteerID   string     `json:"volunteerId" binding:"required,objectid"`
	EventID       string     `json:"eventId" binding:"required,objectid"`
	VolunteerName string     `json:"volunteerName" binding:"max=100"`
	EventName     string     `json:"eventName" binding:"max=100"`
	EventDate     *time.Time `json:"eventDate"`
	Status        string     `json:"status" binding:"omitempty,oneof=Assigned Confirmed Completed Cancelled No-Show"`
	HoursWorked   float64    `json:"hoursWorked" binding:"gte=0"`
}

type UpdateHistoryStatusRequest struct {
	Status      string   `json:"status" binding:"required,oneof=Assigned Confirmed Completed Cancelled No-Show"`
	HoursWorked *float64 `json:"hoursWorked" binding:"omitempty,gte=0"`
	Feedback    *string  `json:"feedback" binding:"omitempty,max=1000"`
	Rating      *int     `json:"rating" binding:"omitempty,min=1,max=5"`
}

func NewHistoryHandler(recorder *history.Recorder, service *assignment.Service, lookup historyLookup) *HistoryHandler {
	return &HistoryHandler{recorder: recorder, service: service, lookup: lookup}
}

// List returns the caller's own history. Admins see every record and may
// filter by status and event date.
func (h *HistoryHandler) List(c *gin.Context) {
	var q HistoryQuery
	if !bindQuery(c, &q) {
		return
	}
	userID, role, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	var (
		records []models.HistoryRecord
		err     error
	)
	if role == models.RoleAdmin {
		filter := models.HistoryFilter{Status: q.Status, From: q.StartDate, Limit: q.Limit}
		if q.EndDate != nil {
			// endDate is inclusive
			end := q.EndDate.Add(24*time.Hour - time.Nanosecond)
			filter.To = &end
		}
		records, err = h.recorder.ListAll(ctx, filter)
	} else {
		records, err = h.recorder.ListOwn(ctx, userID, q.Limit)
	}
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *HistoryHandler) Stats(c *gin.Context) {
	userID, role, _ := middleware.CurrentUser(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	if role == models.RoleAdmin {
		stats, err := h.recorder.OverallStats(ctx)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	stats, err := h.recorder.VolunteerStats(ctx, userID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HistoryHandler) EventHistory(c *gin.Context) {
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	records, err := h.recorder.ForEvent(ctx, eventID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *HistoryHandler) UpdateStatus(c *gin.Context) {
	volunteerID, ok := pathID(c, "volunteerId")
	if !ok {
		return
	}
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return
	}
	var req UpdateHistoryStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	record, err := h.service.UpdateStatus(ctx, volunteerID, eventID, assignment.StatusUpdate{
		Status:      req.Status,
		HoursWorked: req.HoursWorked,
		Feedback:    req.Feedback,
		Rating:      req.Rating,
	})
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Create appends a record by hand, for participation the automatic
// recording missed.
func (h *HistoryHandler) Create(c *gin.Context) {
	var req CreateHistoryRequest
	if !bindJSON(c, &req) {
		return
	}
	volunteerID, eventID := mustObjectID(req.VolunteerID), mustObjectID(req.EventID)

	ctx, cancel := requestContext(c)
	defer cancel()

	volunteer, err := h.lookup.GetUser(ctx, volunteerID)
	if err == nil && volunteer.Role != models.RoleVolunteer {
		err = storage.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperrors.ErrVolunteerNotFound
		}
		middleware.WriteError(c, err)
		return
	}

	event, err := h.lookup.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperrors.ErrEventNotFound
		}
		middleware.WriteError(c, err)
		return
	}

	s := history.Snapshot{
		VolunteerID:   volunteerID,
		EventID:       eventID,
		VolunteerName: req.VolunteerName,
		EventName:     req.EventName,
		EventDate:     event.Date,
		Status:        req.Status,
		HoursWorked:   req.HoursWorked,
	}
	if s.VolunteerName == "" {
		s.VolunteerName = volunteer.DisplayName()
	}
	if s.EventName == "" {
		s.EventName = event.Title
	}
	if req.EventDate != nil {
		s.EventDate = *req.EventDate
	}
	if s.Status == "" {
		s.Status = models.HistoryAssigned
	}

	record, err := h.recorder.Record(ctx, s)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}
