package submissions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/queues"
	"submission-backend/internal/shared/server/middleware"
	"submission-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the submission service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches submission routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/queues/:id/submit", h.submit)
	rg.POST("/queues/:id/cancel", h.cancel)
	rg.GET("/submissions/:id", h.getSubmission)
}

func (h *Handler) submit(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)
	queueID := c.Param("id")
	if queueID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "queue id is required", nil)
		return
	}

	c.Set("queueId", queueID)
	outcome, err := h.Svc.Submit(c.Request.Context(), sessionID, queueID)
	if outcome.SubmissionID != "" {
		c.Set("submissionId", outcome.SubmissionID)
	}
	if err != nil {
		switch {
		case errors.Is(err, queues.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "queue not found", nil)
		case errors.Is(err, ErrAlreadySubmitting):
			respond.Error(c, http.StatusConflict, "already_submitting", "a submission for this queue is already in progress", nil)
		default:
			var transition *queues.IllegalTransitionError
			if errors.As(err, &transition) {
				respond.Error(c, http.StatusConflict, "illegal_state", transition.Error(), nil)
				return
			}
			respond.JSON(c, http.StatusUnprocessableEntity, submitFailureBody(outcome, err))
		}
		return
	}

	c.Set("statusTransition", string(queues.StatusSubmitting)+"->"+string(outcome.Status))
	respond.JSON(c, http.StatusOK, gin.H{
		"queueId":      outcome.QueueID,
		"submissionId": outcome.SubmissionID,
		"status":       outcome.Status,
	})
}

func (h *Handler) cancel(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)
	queueID := c.Param("id")
	if queueID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "queue id is required", nil)
		return
	}

	if err := h.Svc.Cancel(c.Request.Context(), sessionID, queueID); err != nil {
		switch {
		case errors.Is(err, queues.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "queue not found", nil)
		case errors.Is(err, ErrAlreadySubmitting):
			respond.Error(c, http.StatusConflict, "already_submitting", "a submission for this queue is already in progress", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel queue", nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getSubmission(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "submission id is required", nil)
		return
	}

	sub, err := h.Svc.Get(c.Request.Context(), sessionID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "submission not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch submission", nil)
		}
		return
	}

	respond.OK(c, sub)
}

func submitFailureBody(outcome Outcome, err error) gin.H {
	body := gin.H{
		"queueId":   outcome.QueueID,
		"status":    queues.StatusFailed,
		"code":      ErrorCodeFor(err),
		"error":     err.Error(),
		"retryable": outcome.Retryable,
	}
	if len(outcome.SlotErrors) > 0 {
		body["slotErrors"] = outcome.SlotErrors
	}
	return body
}
