package queues

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"submission-backend/internal/shared/server/middleware"
	"submission-backend/internal/shared/server/respond"
)

// Handler exposes deferred queue management over HTTP: creating the
// queue, editing its form snapshot, and adding or removing file slots.
// Submit and cancel live with the submission service.
type Handler struct {
	Store *Store
	TTL   time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(store *Store, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{Store: store, TTL: ttl}
}

// RegisterRoutes attaches queue routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/queues", h.createQueue)
	rg.GET("/queues/current", h.getCurrent)
	rg.GET("/queues/:id", h.getQueue)
	rg.PATCH("/queues/:id", h.updateForm)
	rg.PUT("/queues/:id/files/:slot", h.putFile)
	rg.DELETE("/queues/:id/files/:slot", h.deleteFile)
}

type createQueueRequest struct {
	Form json.RawMessage `json:"form"`
}

type putFileRequest struct {
	URI      string `json:"uri" binding:"required"`
	Name     string `json:"name" binding:"required"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

func (h *Handler) createQueue(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)

	var req createQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.Form) == 0 {
		req.Form = json.RawMessage(`{}`)
	}

	now := time.Now().UTC()
	q := &DeferredQueue{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		FormSnapshot: req.Form,
		Operations:   make(map[string]UploadOperation),
		Status:       StatusDraft,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.TTL),
	}

	if err := h.Store.Create(c.Request.Context(), q); err != nil {
		if errors.Is(err, ErrActiveQueueExists) {
			respond.Error(c, http.StatusConflict, "queue_exists", "an active queue already exists for this session", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create queue", nil)
		return
	}

	c.Set("queueId", q.ID)
	respond.JSON(c, http.StatusCreated, q)
}

func (h *Handler) getCurrent(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)

	q, err := h.Store.GetActiveForSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "no active queue for this session", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch queue", nil)
		return
	}

	respond.OK(c, q)
}

func (h *Handler) getQueue(c *gin.Context) {
	q, ok := h.ownedQueue(c)
	if !ok {
		return
	}
	respond.OK(c, q)
}

func (h *Handler) updateForm(c *gin.Context) {
	q, ok := h.editableQueue(c)
	if !ok {
		return
	}

	var req createQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Form) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	q.FormSnapshot = req.Form
	if err := h.Store.Save(c.Request.Context(), q); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save queue", nil)
		return
	}
	respond.OK(c, q)
}

func (h *Handler) putFile(c *gin.Context) {
	q, ok := h.editableQueue(c)
	if !ok {
		return
	}
	slot := c.Param("slot")
	if slot == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document slot is required", nil)
		return
	}

	var req putFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	// Replacing a slot discards any previous transfer for it.
	q.Operations[slot] = UploadOperation{
		ID:     uuid.NewString(),
		Slot:   slot,
		Status: OpPending,
		File: FileDescriptor{
			URI:      req.URI,
			Name:     req.Name,
			MimeType: req.MimeType,
			Size:     req.Size,
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.Store.Save(c.Request.Context(), q); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save queue", nil)
		return
	}
	respond.OK(c, q)
}

func (h *Handler) deleteFile(c *gin.Context) {
	q, ok := h.editableQueue(c)
	if !ok {
		return
	}
	slot := c.Param("slot")
	if _, exists := q.Operations[slot]; !exists {
		respond.Error(c, http.StatusNotFound, "not_found", "document slot not found", nil)
		return
	}

	delete(q.Operations, slot)
	if err := h.Store.Save(c.Request.Context(), q); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save queue", nil)
		return
	}
	respond.OK(c, q)
}

// ownedQueue loads the queue in the path and enforces session ownership.
func (h *Handler) ownedQueue(c *gin.Context) (*DeferredQueue, bool) {
	sessionID := middleware.SessionIDFromContext(c)
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "queue id is required", nil)
		return nil, false
	}

	q, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "queue not found", nil)
			return nil, false
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch queue", nil)
		return nil, false
	}
	if q.SessionID != sessionID {
		respond.Error(c, http.StatusNotFound, "not_found", "queue not found", nil)
		return nil, false
	}
	c.Set("queueId", q.ID)
	return q, true
}

// editableQueue additionally rejects mutation of a queue mid-submission
// or already completed.
func (h *Handler) editableQueue(c *gin.Context) (*DeferredQueue, bool) {
	q, ok := h.ownedQueue(c)
	if !ok {
		return nil, false
	}
	if q.Status == StatusSubmitting || q.Status == StatusCompleted {
		respond.Error(c, http.StatusConflict, "illegal_state", "queue is not editable in its current state", nil)
		return nil, false
	}
	return q, true
}
