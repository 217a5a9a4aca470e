package bookings

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the booking service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches booking routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/schedules", h.listSchedules)
	rg.POST("/bookings", h.book)
	rg.GET("/bookings/:id", h.getBooking)
	rg.POST("/bookings/:id/cancel", h.cancel)
}

type bookRequest struct {
	ScheduleID     string `json:"scheduleId" binding:"required"`
	ParentRecordID string `json:"parentRecordId" binding:"required"`
}

func (h *Handler) listSchedules(c *gin.Context) {
	var filter ScheduleFilter
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "from must be RFC3339", nil)
			return
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "to must be RFC3339", nil)
			return
		}
		filter.To = t
	}
	filter.Venue = c.Query("venue")
	filter.OnlyAvailable = c.Query("available") == "true"

	schedules, err := h.Svc.ListSchedules(c.Request.Context(), filter)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list schedules", nil)
		return
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	respond.OK(c, gin.H{"schedules": schedules})
}

func (h *Handler) book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "scheduleId and parentRecordId are required", nil)
		return
	}

	booking, err := h.Svc.Book(c.Request.Context(), req.ScheduleID, req.ParentRecordID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "schedule not found", nil)
		case errors.Is(err, ErrNoSlots):
			respond.Error(c, http.StatusConflict, "no_slots", "no slots available on this schedule", nil)
		case errors.Is(err, ErrDuplicateBooking):
			respond.Error(c, http.StatusConflict, "duplicate_booking", "a scheduled booking already exists for this record", nil)
		case errors.Is(err, ErrSessionStarted):
			respond.Error(c, http.StatusConflict, "session_started", "the session has already started", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to book slot", nil)
		}
		return
	}

	c.Set("bookingId", booking.ID)
	respond.JSON(c, http.StatusCreated, booking)
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "booking not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch booking", nil)
		return
	}
	respond.OK(c, booking)
}

func (h *Handler) cancel(c *gin.Context) {
	booking, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "booking not found", nil)
		case errors.Is(err, ErrNotScheduled):
			respond.Error(c, http.StatusConflict, "not_scheduled", "booking is not in scheduled state", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel booking", nil)
		}
		return
	}
	respond.OK(c, booking)
}
