package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorbuddy-backend/internal/calls"
)

// ListCalls handles GET /api/calls?status=.
func (h *Handler) ListCalls(c *gin.Context) {
	raw, err := h.upstream.FetchMyCalls(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	entries := calls.Classify(raw, h.now(), h.loc)
	if status := c.Query("status"); status != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.Status) == status {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	c.JSON(http.StatusOK, gin.H{"calls": entries})
}

// GetRecording handles GET /api/calls/:call_id/recording.
func (h *Handler) GetRecording(c *gin.Context) {
	rec, err := h.upstream.FetchRecording(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rec.RecordingURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not available yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording_url": rec.RecordingURL})
}
