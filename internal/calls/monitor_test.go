package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"mentorbuddy-backend/config"
	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/timers"
)

type fakeSource struct {
	calls []mentorapi.Call
	err   error
}

func (f *fakeSource) FetchMyCalls(context.Context) ([]mentorapi.Call, error) {
	return f.calls, f.err
}

type mockTimers struct {
	mock.Mock
}

func (m *mockTimers) Start(req timers.StartRequest) (*timers.View, error) {
	args := m.Called(req)
	if v := args.Get(0); v != nil {
		return v.(*timers.View), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTimers) Cancel(id string) error {
	return m.Called(id).Error(0)
}

func newTestMonitor(source CallSource, starter TimerStarter, now time.Time) *Monitor {
	cfg := config.MonitorConfig{Enabled: true, Interval: time.Minute, WarningSeconds: 300, Timezone: "UTC"}
	m := NewMonitor(cfg, source, starter, "u1", zap.NewNop())
	m.now = func() time.Time { return now }
	return m
}

func TestMonitor_StartsTimerForOngoingCall(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{calls: []mentorapi.Call{
		call("c1", "2025-03-10T09:40:00Z", "30 mins", "video"),
		call("c2", "2025-03-10T12:00:00Z", "30 mins", "video"),
	}}
	starter := &mockTimers{}
	starter.On("Start", timers.StartRequest{
		Owner:         "u1",
		Label:         "video session with Asha Rao",
		CallID:        "c1",
		BudgetMinutes: 10,
		Thresholds:    []int{300},
	}).Return(&timers.View{ID: "t1"}, nil).Once()

	m := newTestMonitor(source, starter, now)
	m.PollOnce(context.Background())
	// A second poll does not start a duplicate timer.
	m.PollOnce(context.Background())

	starter.AssertExpectations(t)
	assert.Equal(t, map[string]string{"c1": "t1"}, m.Active())
}

func TestMonitor_LateJoinCapsWarning(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{calls: []mentorapi.Call{call("c1", "2025-03-10T09:32:00Z", "30 mins", "audio")}}
	starter := &mockTimers{}
	starter.On("Start", mock.MatchedBy(func(req timers.StartRequest) bool {
		return req.CallID == "c1" && len(req.Thresholds) == 1 && req.Thresholds[0] == 120
	})).Return(&timers.View{ID: "t1"}, nil).Once()

	m := newTestMonitor(source, starter, now)
	m.PollOnce(context.Background())

	starter.AssertExpectations(t)
}

func TestMonitor_CancelsFinishedCalls(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{calls: []mentorapi.Call{call("c1", "2025-03-10T09:40:00Z", "30 mins", "video")}}
	starter := &mockTimers{}
	starter.On("Start", mock.Anything).Return(&timers.View{ID: "t1"}, nil).Once()
	starter.On("Cancel", "t1").Return(nil).Once()

	m := newTestMonitor(source, starter, now)
	m.PollOnce(context.Background())

	m.now = func() time.Time { return now.Add(time.Hour) }
	m.PollOnce(context.Background())

	starter.AssertExpectations(t)
	assert.Empty(t, m.Active())
}

func TestMonitor_FetchErrorKeepsTimers(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{calls: []mentorapi.Call{call("c1", "2025-03-10T09:40:00Z", "30 mins", "video")}}
	starter := &mockTimers{}
	starter.On("Start", mock.Anything).Return(&timers.View{ID: "t1"}, nil).Once()

	m := newTestMonitor(source, starter, now)
	m.PollOnce(context.Background())

	source.err = errors.New("upstream down")
	m.PollOnce(context.Background())

	starter.AssertNotCalled(t, "Cancel", mock.Anything)
	assert.Equal(t, map[string]string{"c1": "t1"}, m.Active())
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	source := &fakeSource{}
	m := newTestMonitor(source, &mockTimers{}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
