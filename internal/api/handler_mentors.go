package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorbuddy-backend/internal/booking"
)

// GetSlots handles GET /api/mentors/:mentor_id/slots. With ?available=true
// only free slots are returned, optionally narrowed by ?call_type=.
func (h *Handler) GetSlots(c *gin.Context) {
	days, err := h.booking.Slots(c.Request.Context(), c.Param("mentor_id"), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("available") == "true" || c.Query("call_type") != "" {
		days = booking.Available(days, c.Query("call_type"))
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GetMentorPackages handles GET /api/mentors/:mentor_id/packages.
func (h *Handler) GetMentorPackages(c *gin.Context) {
	pkgs, err := h.upstream.FetchMentorPackages(c.Request.Context(), c.Param("mentor_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs})
}

// GetUserPackages handles GET /api/packages?type=, the packages bought by
// the token's user.
func (h *Handler) GetUserPackages(c *gin.Context) {
	if h.userID == "" {
		h.respondError(c, booking.ErrUnknownUser)
		return
	}
	pkgs, err := h.upstream.FetchUserPackages(c.Request.Context(), h.userID, c.Query("type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": pkgs})
}

// GetGroupSessions handles GET /api/mentors/:mentor_id/group-sessions.
func (h *Handler) GetGroupSessions(c *gin.Context) {
	sessions, err := h.upstream.FetchGroupSessions(c.Request.Context(), c.Param("mentor_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	type groupSessionResponse struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Description string  `json:"description,omitempty"`
		Price       float64 `json:"price"`
		Capacity    int     `json:"capacity"`
		Booked      int     `json:"booked"`
		Full        bool    `json:"full"`
		Joined      bool    `json:"joined"`
		SessionDate string  `json:"session_date,omitempty"`
		SessionTime string  `json:"session_time,omitempty"`
	}
	resp := make([]groupSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, groupSessionResponse{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Price:       s.Price,
			Capacity:    s.Capacity,
			Booked:      len(s.BookedUsers),
			Full:        s.Full(),
			Joined:      h.userID != "" && s.HasUser(h.userID),
			SessionDate: s.SessionDate,
			SessionTime: s.SessionTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"group_sessions": resp})
}
