package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mentorbuddy-backend/internal/booking"
)

// BookSingle handles POST /api/bookings.
func (h *Handler) BookSingle(c *gin.Context) {
	var req booking.SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.booking.BookSingle(c.Request.Context(), h.userID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListBookings handles GET /api/bookings?limit=.
func (h *Handler) ListBookings(c *gin.Context) {
	if h.userID == "" {
		h.respondError(c, booking.ErrUnknownUser)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.booking.Records(c.Request.Context(), h.userID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	type recordResponse struct {
		ID          string `json:"id"`
		FlowID      string `json:"flow_id,omitempty"`
		MentorID    string `json:"mentor_id"`
		PackageID   string `json:"package_id,omitempty"`
		SlotID      string `json:"slot_id,omitempty"`
		Date        string `json:"date,omitempty"`
		Time        string `json:"time,omitempty"`
		CallType    string `json:"call_type,omitempty"`
		Kind        string `json:"kind"`
		Status      string `json:"status"`
		Reason      string `json:"reason,omitempty"`
		BookingID   string `json:"booking_id,omitempty"`
		MeetingLink string `json:"meeting_link,omitempty"`
		CreatedAt   string `json:"created_at"`
	}
	resp := make([]recordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, recordResponse{
			ID:          r.ID.String(),
			FlowID:      r.FlowID,
			MentorID:    r.MentorID,
			PackageID:   r.PackageID,
			SlotID:      r.SlotID,
			Date:        r.Date,
			Time:        r.Time,
			CallType:    r.CallType,
			Kind:        r.Kind,
			Status:      string(r.Status),
			Reason:      r.Reason,
			BookingID:   r.RemoteBookingID,
			MeetingLink: r.MeetingLink,
			CreatedAt:   r.CreatedAt.In(h.loc).Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"bookings": resp})
}

type groupBookRequest struct {
	MentorID string `json:"mentor_id" binding:"required"`
}

// BookGroup handles POST /api/group-sessions/:session_id/book.
func (h *Handler) BookGroup(c *gin.Context) {
	var req groupBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.booking.BookGroup(c.Request.Context(), h.userID, req.MentorID, c.Param("session_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
