package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/upload"
	"go.uber.org/zap"
)

// RetryUploads runs one pass over the pending-upload queue and reports the
// per-session status transitions.
func (handler *Handler) RetryUploads(c *gin.Context) {
	var mu sync.Mutex

	statuses := make(map[string]string)

	err := handler.Orchestrator.RetryPendingUploads(
		c.Request.Context(),
		func(sessionID string, status upload.RetryStatus) {
			mu.Lock()
			defer mu.Unlock()

			statuses[sessionID] = string(status)
		},
	)
	if err != nil {
		if errors.Is(err, upload.ErrRetryPassRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "a retry pass is already running"})
			return
		}

		logging.Logger.Error("Retry pass failed", zap.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retry pass failed"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

type pendingUploadView struct {
	SessionID   string `json:"session_id"`
	RetryCount  int    `json:"retry_count"`
	LastAttempt string `json:"last_attempt,omitempty"`
}

// ListPendingUploads exposes the current queue for operator inspection.
func (handler *Handler) ListPendingUploads(c *gin.Context) {
	entries, err := handler.Queue.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending uploads"})
		return
	}

	views := make([]pendingUploadView, 0, len(entries))

	for idx := range entries {
		view := pendingUploadView{
			SessionID:  entries[idx].SessionID,
			RetryCount: entries[idx].RetryCount,
		}
		if entries[idx].LastAttempt != nil {
			view.LastAttempt = entries[idx].LastAttempt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}

		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"pending": views})
}
