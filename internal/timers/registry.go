// Package timers keeps the live session countdowns of every user and turns
// their thresholds into warnings.
package timers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorbuddy-backend/internal/countdown"
	"mentorbuddy-backend/internal/notification"
)

// ErrTimerNotFound is returned for unknown timer ids.
var ErrTimerNotFound = errors.New("timer not found")

// DefaultRetention is how long an expired timer stays readable.
const DefaultRetention = time.Minute

// Notifier delivers warnings outside the page, e.g. as web push.
type Notifier interface {
	Dispatch(w notification.Warning) bool
}

// EventType names what happened to a timer.
type EventType string

const (
	EventWarning   EventType = "warning"
	EventExpired   EventType = "expired"
	EventCancelled EventType = "cancelled"
)

// Warning is an in-page warning raised when a threshold is crossed.
type Warning struct {
	ThresholdSeconds int       `json:"threshold_seconds"`
	Message          string    `json:"message"`
	At               time.Time `json:"at"`
}

// Event is delivered to watchers of a timer.
type Event struct {
	Type             EventType `json:"type"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Warning          *Warning  `json:"warning,omitempty"`
}

// StartRequest describes a countdown to start.
type StartRequest struct {
	Owner         string
	Label         string
	CallID        string
	BudgetMinutes float64
	// Thresholds in seconds; nil selects the registry defaults.
	Thresholds []int
}

// View is the externally visible state of a timer.
type View struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Label     string    `json:"label,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Display   string    `json:"display"`
	countdown.Snapshot
	Warnings []Warning `json:"warnings"`
}

type timer struct {
	id        string
	owner     string
	label     string
	callID    string
	startedAt time.Time

	mu       sync.Mutex
	handle   *countdown.Handle
	warnings []Warning
	watchers map[chan Event]struct{}
	final    *Event
	endedAt  time.Time
}

// Registry owns all running timers.
type Registry struct {
	mu     sync.RWMutex
	timers map[string]*timer

	engine    *countdown.Engine
	notifier  Notifier
	defaults  []int
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a registry. notifier may be nil.
func NewRegistry(engine *countdown.Engine, notifier Notifier, defaultThresholds []int, logger *zap.Logger) *Registry {
	return &Registry{
		timers:    make(map[string]*timer),
		engine:    engine,
		notifier:  notifier,
		defaults:  defaultThresholds,
		retention: DefaultRetention,
		logger:    logger.Named("timers"),
		now:       time.Now,
	}
}

// SetRetention sets how long expired timers remain readable. Zero drops
// them as soon as they expire.
func (r *Registry) SetRetention(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = d
}

// Start begins a countdown and registers it.
func (r *Registry) Start(req StartRequest) (*View, error) {
	thresholds := req.Thresholds
	if thresholds == nil {
		thresholds = r.defaults
	}

	t := &timer{
		id:        uuid.NewString(),
		owner:     req.Owner,
		label:     req.Label,
		callID:    req.CallID,
		startedAt: r.now(),
		watchers:  make(map[chan Event]struct{}),
	}

	h, err := r.engine.Start(req.BudgetMinutes, thresholds,
		func(threshold int) { r.onThreshold(t, threshold) },
		func() { r.onExpire(t) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()

	r.mu.Lock()
	r.timers[t.id] = t
	r.sweepLocked(r.now())
	r.mu.Unlock()

	r.logger.Info("timer started",
		zap.String("timer_id", t.id),
		zap.String("owner", t.owner),
		zap.Float64("budget_minutes", req.BudgetMinutes),
		zap.Ints("thresholds", thresholds))
	return t.view(), nil
}

func (r *Registry) onThreshold(t *timer, threshold int) {
	w := Warning{
		ThresholdSeconds: threshold,
		Message:          WarningMessage(threshold),
		At:               r.now(),
	}

	t.mu.Lock()
	t.warnings = append(t.warnings, w)
	t.publishLocked(Event{Type: EventWarning, RemainingSeconds: threshold, Warning: &w})
	t.mu.Unlock()

	r.logger.Info("timer threshold reached", zap.String("timer_id", t.id), zap.Int("threshold", threshold))

	if r.notifier != nil && t.owner != "" {
		r.notifier.Dispatch(notification.Warning{
			Owner:   t.owner,
			TimerID: t.id,
			Title:   "Session ending soon",
			Body:    w.Message,
		})
	}
}

func (r *Registry) onExpire(t *timer) {
	now := r.now()
	t.finish(Event{Type: EventExpired}, now)
	r.logger.Info("timer expired", zap.String("timer_id", t.id), zap.String("owner", t.owner))

	r.mu.Lock()
	r.sweepLocked(now)
	r.mu.Unlock()
}

// sweepLocked drops expired timers older than the retention window. Callers
// hold r.mu for writing.
func (r *Registry) sweepLocked(now time.Time) {
	for id, t := range r.timers {
		t.mu.Lock()
		ended := t.endedAt
		t.mu.Unlock()
		if ended.IsZero() || now.Sub(ended) < r.retention {
			continue
		}
		delete(r.timers, id)
		r.logger.Debug("timer evicted", zap.String("timer_id", id))
	}
}

// Get returns the current state of a timer.
func (r *Registry) Get(id string) (*View, error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.view(), nil
}

// List returns the timers of owner, or every timer when owner is empty,
// oldest first.
func (r *Registry) List(owner string) []View {
	r.mu.Lock()
	r.sweepLocked(r.now())
	matched := make([]*timer, 0, len(r.timers))
	for _, t := range r.timers {
		if owner == "" || t.owner == owner {
			matched = append(matched, t)
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].startedAt.Before(matched[j].startedAt) })
	views := make([]View, 0, len(matched))
	for _, t := range matched {
		views = append(views, *t.view())
	}
	return views
}

// Cancel stops a timer and forgets it.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	t, ok := r.timers[id]
	if ok {
		delete(r.timers, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}

	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	h.Cancel()

	t.finish(Event{Type: EventCancelled, RemainingSeconds: h.Remaining()}, r.now())
	r.logger.Info("timer cancelled", zap.String("timer_id", id), zap.Int("remaining_seconds", h.Remaining()))
	return nil
}

// CancelAll stops every timer.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.timers))
	for id := range r.timers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Cancel(id)
	}
}

// Watch subscribes to a timer's events. The channel is closed after the
// expired or cancelled event. stop releases the subscription early.
func (r *Registry) Watch(id string) (<-chan Event, func(), error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Event, 8)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.final != nil {
		ch <- *t.final
		close(ch)
		return ch, func() {}, nil
	}
	t.watchers[ch] = struct{}{}

	stop := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.watchers[ch]; ok {
			delete(t.watchers, ch)
			close(ch)
		}
	}
	return ch, stop, nil
}

func (r *Registry) lookup(id string) (*timer, error) {
	r.mu.Lock()
	r.sweepLocked(r.now())
	t, ok := r.timers[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	return t, nil
}

// publishLocked sends ev to every watcher without blocking. Callers hold t.mu.
func (t *timer) publishLocked(ev Event) {
	for ch := range t.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish records the terminal event and closes every watcher. Only the
// first call has an effect.
func (t *timer) finish(ev Event, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return
	}
	t.final = &ev
	t.endedAt = at
	t.publishLocked(ev)
	for ch := range t.watchers {
		close(ch)
	}
	t.watchers = nil
}

func (t *timer) view() *View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := &View{
		ID:        t.id,
		Owner:     t.owner,
		Label:     t.label,
		CallID:    t.callID,
		StartedAt: t.startedAt,
		Warnings:  append([]Warning{}, t.warnings...),
	}
	if t.handle != nil {
		v.Snapshot = t.handle.Snapshot()
		v.Display = countdown.Format(v.RemainingSeconds)
	}
	return v
}

// WarningMessage is the text shown when a threshold is crossed.
func WarningMessage(thresholdSeconds int) string {
	switch {
	case thresholdSeconds <= 0:
		return "Your session has ended!"
	case thresholdSeconds%60 == 0:
		n := thresholdSeconds / 60
		if n == 1 {
			return "Your session will end in 1 minute!"
		}
		return fmt.Sprintf("Your session will end in %d minutes!", n)
	case thresholdSeconds == 1:
		return "Your session will end in 1 second!"
	default:
		return fmt.Sprintf("Your session will end in %d seconds!", thresholdSeconds)
	}
}
