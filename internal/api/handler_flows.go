package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorbuddy-backend/internal/booking"
	"mentorbuddy-backend/internal/selector"
)

// ListFlows handles GET /api/flows.
func (h *Handler) ListFlows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flows": h.booking.Flows(h.userID)})
}

// OpenFlow handles POST /api/flows.
func (h *Handler) OpenFlow(c *gin.Context) {
	var req booking.OpenFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	view, err := h.booking.OpenFlow(c.Request.Context(), h.userID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetFlow handles GET /api/flows/:flow_id.
func (h *Handler) GetFlow(c *gin.Context) {
	view, err := h.booking.Flow(c.Param("flow_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type toggleRequest struct {
	SlotID   string `json:"slot_id" binding:"required"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	CallType string `json:"call_type"`
}

// ToggleSlot handles POST /api/flows/:flow_id/toggle. A toggle beyond the
// quota answers 409 with the unchanged flow so the page can show a warning.
func (h *Handler) ToggleSlot(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	view, err := h.booking.Toggle(c.Param("flow_id"), selector.Slot{
		ID:       req.SlotID,
		Date:     req.Date,
		Time:     req.Time,
		CallType: req.CallType,
	})

	var quotaErr *selector.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusConflict, gin.H{"warning": quotaErr.Error(), "flow": view})
	case err != nil:
		h.respondError(c, err)
	default:
		c.JSON(http.StatusOK, view)
	}
}

// CommitFlow handles POST /api/flows/:flow_id/commit.
func (h *Handler) CommitFlow(c *gin.Context) {
	view, err := h.booking.Commit(c.Request.Context(), c.Param("flow_id"))
	h.respondSettled(c, view, err)
}

// RetryFlow handles POST /api/flows/:flow_id/retry.
func (h *Handler) RetryFlow(c *gin.Context) {
	view, err := h.booking.Retry(c.Request.Context(), c.Param("flow_id"))
	h.respondSettled(c, view, err)
}

// respondSettled answers 201 when every slot is booked and 207 when some
// failed; the flow stays open for a retry in that case.
func (h *Handler) respondSettled(c *gin.Context, view *booking.FlowView, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	if view.Phase == selector.PhaseFailed {
		c.JSON(http.StatusMultiStatus, view)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// CancelFlow handles DELETE /api/flows/:flow_id.
func (h *Handler) CancelFlow(c *gin.Context) {
	if err := h.booking.Cancel(c.Param("flow_id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
