package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/recorder"
	"go.uber.org/zap"
)

// UploadRecording accepts a finished take as multipart form data and runs it
// through the upload pipeline. The response carries the session record and
// the upload outcome; a queued-for-retry outcome is a 202, not an error.
func (handler *Handler) UploadRecording(c *gin.Context) {
	customerID := c.Param("id")

	owner, err := handler.findCustomer(c.Request.Context(), customerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up customer"})
		return
	}

	if owner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open audio file"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is empty or unreadable"})
		return
	}

	duration, _ := strconv.Atoi(c.PostForm("duration"))
	if duration < 0 {
		duration = 0
	}

	take, err := takeFromUpload(audio, duration)
	if err != nil {
		logging.Logger.Error("Failed to assemble take from upload",
			zap.String("customer_id", customerID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble recording"})

		return
	}

	record, outcome, err := handler.Orchestrator.FinishRecording(c.Request.Context(), owner, take, nil)
	if err != nil {
		logging.Logger.Error("Failed to process recording",
			zap.String("customer_id", customerID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process recording"})

		return
	}

	handler.track(c, customerID, "recording_uploaded")

	status := http.StatusCreated
	if !outcome.Success {
		status = http.StatusAccepted
	}

	c.JSON(status, gin.H{
		"session": record,
		"outcome": outcome,
	})
}

// streamDevice backs a recorder fed from an HTTP upload; the bytes already
// arrived, so there is no physical input to acquire.
type streamDevice struct{}

func (streamDevice) Acquire() error { return nil }

func (streamDevice) Release() {}

// takeFromUpload replays an uploaded blob through the recorder state machine.
// The server clock cannot observe the capture window, so the client-reported
// duration replaces the measured one.
func takeFromUpload(audio []byte, duration int) (*recorder.Take, error) {
	rec := recorder.New(streamDevice{})

	err := rec.Initialize()
	if err != nil {
		return nil, err
	}
	defer rec.Cleanup()

	err = rec.Start()
	if err != nil {
		return nil, err
	}

	rec.AppendChunk(audio)

	take, err := rec.Stop()
	if err != nil {
		return nil, err
	}

	take.Duration = duration

	return take, nil
}
