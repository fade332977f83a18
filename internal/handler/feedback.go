package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/climatequery/engine/internal/cache"
	"github.com/climatequery/engine/internal/types"
)

// FeedbackHandler accepts a caller's rating of a previously returned
// Answer and enqueues it for durable, off-request-path persistence.
type FeedbackHandler struct {
	asynqClient *asynq.Client
}

// NewFeedbackHandler builds a FeedbackHandler bound to the asynq client.
func NewFeedbackHandler(asynqClient *asynq.Client) *FeedbackHandler {
	return &FeedbackHandler{asynqClient: asynqClient}
}

type submitFeedbackRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	CacheKey  string `json:"cache_key" binding:"required"`
	Helpful   bool   `json:"helpful"`
	Comment   string `json:"comment,omitempty"`
}

// SubmitFeedback enqueues a FeedbackRecord; the request returns as soon as
// the task is enqueued, before it is persisted.
func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	record := types.FeedbackRecord{
		RequestID: req.RequestID,
		Key:       types.CacheKey(req.CacheKey),
		Helpful:   req.Helpful,
		Comment:   req.Comment,
		StoredAt:  time.Now(),
	}
	task, err := cache.NewFeedbackTask(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "could not queue feedback"})
		return
	}
	if _, err := h.asynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "feedback queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
