package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mentorbuddy-backend/internal/countdown"
	"mentorbuddy-backend/internal/timers"
)

const (
	tickInterval = time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originAllowed(allowedOrigins),
	}
}

// originAllowed accepts the same page origins as CORS. An empty list allows
// any origin; requests without an Origin header do not come from a browser.
func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
				return true
			}
		}
		return false
	}
}

type startTimerRequest struct {
	Owner         string   `json:"owner"`
	Label         string   `json:"label"`
	CallID        string   `json:"call_id"`
	BudgetMinutes *float64 `json:"budget_minutes" binding:"required"`
	Thresholds    []int    `json:"thresholds"`
}

// StartTimer handles POST /api/timers. The owner defaults to the token's user.
func (h *Handler) StartTimer(c *gin.Context) {
	var req startTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	owner := req.Owner
	if owner == "" {
		owner = h.userID
	}

	view, err := h.timers.Start(timers.StartRequest{
		Owner:         owner,
		Label:         req.Label,
		CallID:        req.CallID,
		BudgetMinutes: *req.BudgetMinutes,
		Thresholds:    req.Thresholds,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListTimers handles GET /api/timers?owner=.
func (h *Handler) ListTimers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timers": h.timers.List(c.Query("owner"))})
}

// GetTimer handles GET /api/timers/:timer_id.
func (h *Handler) GetTimer(c *gin.Context) {
	view, err := h.timers.Get(c.Param("timer_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelTimer handles DELETE /api/timers/:timer_id.
func (h *Handler) CancelTimer(c *gin.Context) {
	if err := h.timers.Cancel(c.Param("timer_id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// timerMessage is one frame sent to a watching page.
type timerMessage struct {
	Type             string          `json:"type"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Display          string          `json:"display"`
	Warning          *timers.Warning `json:"warning,omitempty"`
}

// WatchTimer handles GET /api/timers/:timer_id/ws. It streams one tick frame
// per second plus warning frames, and closes after the expired or cancelled
// frame.
func (h *Handler) WatchTimer(c *gin.Context) {
	id := c.Param("timer_id")
	events, stop, err := h.timers.Watch(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("timer_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	// Reads only serve control frames and notice the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg timerMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}

	if !h.sendTick(id, send) {
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if !h.sendTick(id, send) {
				return
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "timer finished"),
					time.Now().Add(writeWait))
				return
			}
			msg := timerMessage{
				Type:             string(ev.Type),
				RemainingSeconds: ev.RemainingSeconds,
				Display:          countdown.Format(ev.RemainingSeconds),
				Warning:          ev.Warning,
			}
			if !send(msg) {
				return
			}
		}
	}
}

// sendTick writes the current remaining time. A timer that was cancelled
// and forgotten ends the stream through its events channel instead.
func (h *Handler) sendTick(id string, send func(timerMessage) bool) bool {
	view, err := h.timers.Get(id)
	if err != nil {
		return true
	}
	if view.Expired || view.Cancelled {
		return true
	}
	return send(timerMessage{Type: "tick", RemainingSeconds: view.RemainingSeconds, Display: view.Display})
}
