package calls

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mentorbuddy-backend/config"
	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/timers"
)

// CallSource lists the user's calls.
type CallSource interface {
	FetchMyCalls(ctx context.Context) ([]mentorapi.Call, error)
}

// TimerStarter starts and cancels session countdowns.
type TimerStarter interface {
	Start(req timers.StartRequest) (*timers.View, error)
	Cancel(id string) error
}

// Monitor polls the call history and keeps one countdown per ongoing call.
type Monitor struct {
	cfg    config.MonitorConfig
	source CallSource
	timers TimerStarter
	owner  string
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	active map[string]string // call id -> timer id
}

// NewMonitor creates a monitor for the calls of owner.
func NewMonitor(cfg config.MonitorConfig, source CallSource, starter TimerStarter, owner string, logger *zap.Logger) *Monitor {
	logger = logger.Named("calls")
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid monitor timezone; using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}
	return &Monitor{
		cfg:    cfg,
		source: source,
		timers: starter,
		owner:  owner,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		active: make(map[string]string),
	}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		m.logger.Info("call monitor is disabled; not starting")
		return
	}
	m.logger.Info("starting call monitor", zap.Duration("interval", m.cfg.Interval))

	m.PollOnce(ctx)

	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("call monitor shutting down")
			return
		case <-timer.C:
			m.PollOnce(ctx)
			timer.Reset(m.cfg.Interval)
		}
	}
}

// PollOnce fetches the call history once and reconciles timers with it.
func (m *Monitor) PollOnce(ctx context.Context) {
	raw, err := m.source.FetchMyCalls(ctx)
	if err != nil {
		m.logger.Warn("failed to fetch calls; keeping current timers", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ongoing := make(map[string]Entry)
	for _, e := range Classify(raw, m.now(), m.loc) {
		if e.Status == StatusOngoing && e.CallID != "" {
			ongoing[e.CallID] = e
		}
	}

	for callID, timerID := range m.active {
		if _, still := ongoing[callID]; still {
			continue
		}
		if err := m.timers.Cancel(timerID); err != nil {
			m.logger.Debug("timer already gone", zap.String("timer_id", timerID), zap.Error(err))
		}
		delete(m.active, callID)
		m.logger.Info("call no longer ongoing; timer stopped", zap.String("call_id", callID))
	}

	for callID, e := range ongoing {
		if _, tracked := m.active[callID]; tracked {
			continue
		}
		// Joining late still warns once: the threshold is capped at the time left.
		warnAt := min(m.cfg.WarningSeconds, e.RemainingSeconds)
		v, err := m.timers.Start(timers.StartRequest{
			Owner:         m.owner,
			Label:         label(e),
			CallID:        callID,
			BudgetMinutes: float64(e.RemainingSeconds) / 60,
			Thresholds:    []int{warnAt},
		})
		if err != nil {
			m.logger.Error("failed to start call timer", zap.String("call_id", callID), zap.Error(err))
			continue
		}
		m.active[callID] = v.ID
		m.logger.Info("call timer started", zap.String("call_id", callID), zap.String("timer_id", v.ID), zap.Int("remaining_seconds", e.RemainingSeconds))
	}
}

// Active returns the timer id tracked for each ongoing call.
func (m *Monitor) Active() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.active))
	for k, v := range m.active {
		out[k] = v
	}
	return out
}

func label(e Entry) string {
	if e.MentorName == "" {
		return e.CallType + " session"
	}
	return e.CallType + " session with " + e.MentorName
}
