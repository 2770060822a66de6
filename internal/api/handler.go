package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mentorbuddy-backend/internal/booking"
	"mentorbuddy-backend/internal/countdown"
	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/selector"
	"mentorbuddy-backend/internal/store"
	"mentorbuddy-backend/internal/timers"
)

// Deps are the services the handlers call into.
type Deps struct {
	Store    store.Store
	WebPush  *webpush.Options
	Booking  *booking.Service
	Timers   *timers.Registry
	Upstream mentorapi.API
	Location *time.Location
	Logger   *zap.Logger

	// UserID is the user the configured upstream token belongs to.
	UserID string

	// Inbound limits; zero values fall back to 10 req/s, burst 20 and a
	// five minute response cache. IPHeader names a trusted header carrying
	// the client address and an empty AllowedOrigins allows any origin.
	RateLimit      float64
	RateBurst      int
	CacheTTL       time.Duration
	IPHeader       string
	AllowedOrigins []string
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	webpush  *webpush.Options
	booking  *booking.Service
	timers   *timers.Registry
	upstream mentorapi.API
	userID   string
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
	upgrader *websocket.Upgrader
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:    d.Store,
		webpush:  d.WebPush,
		booking:  d.Booking,
		timers:   d.Timers,
		upstream: d.Upstream,
		userID:   d.UserID,
		loc:      loc,
		logger:   logger.Named("api"),
		now:      time.Now,
		upgrader: newUpgrader(d.AllowedOrigins),
	}
}

// respondError maps service errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var (
		apiErr   *mentorapi.APIError
		netErr   *mentorapi.NetworkError
		quotaErr *selector.QuotaExceededError
		coinsErr *booking.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &quotaErr):
		status = http.StatusConflict
	case errors.As(err, &coinsErr):
		status = http.StatusPaymentRequired
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, booking.ErrFlowNotFound),
		errors.Is(err, booking.ErrGroupSessionNotFound),
		errors.Is(err, timers.ErrTimerNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, selector.ErrEmptySelection),
		errors.Is(err, selector.ErrInvalidSlot),
		errors.Is(err, selector.ErrInvalidQuota),
		errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, countdown.ErrInvalidBudget):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrUnknownUser):
		status = http.StatusUnauthorized
	case errors.Is(err, selector.ErrNotSelecting),
		errors.Is(err, selector.ErrNothingToRetry),
		errors.Is(err, selector.ErrCancelled),
		errors.Is(err, booking.ErrGroupFull),
		errors.Is(err, booking.ErrAlreadyBooked):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
