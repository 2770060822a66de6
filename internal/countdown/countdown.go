package countdown

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrInvalidBudget is returned for negative or non-finite budgets.
var ErrInvalidBudget = errors.New("invalid countdown budget")

// maxBudgetSeconds bounds a countdown to roughly 68 years.
const maxBudgetSeconds = math.MaxInt32

// Engine starts countdowns on tick sources produced by its factory.
type Engine struct {
	newSource func() TickSource
}

// NewEngine creates an engine. A nil factory uses the wall clock.
func NewEngine(newSource func() TickSource) *Engine {
	if newSource == nil {
		newSource = NewWallClock
	}
	return &Engine{newSource: newSource}
}

// Snapshot is a point-in-time view of a countdown.
type Snapshot struct {
	TotalSeconds     int   `json:"total_seconds"`
	RemainingSeconds int   `json:"remaining_seconds"`
	Expired          bool  `json:"expired"`
	Cancelled        bool  `json:"cancelled"`
	FiredThresholds  []int `json:"fired_thresholds"`
}

// Handle controls a running countdown.
type Handle struct {
	stateMu    sync.RWMutex
	total      int
	remaining  int
	thresholds map[int]struct{}
	fired      map[int]struct{}
	expired    bool

	// tickMu serialises ticks; callbacks run while it is held.
	tickMu sync.Mutex
	// tickG is the goroutine holding tickMu, 0 between ticks.
	tickG     atomic.Uint64
	cancelled atomic.Bool

	onThreshold func(int)
	onExpire    func()

	src      TickSource
	srcMu    sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// Start converts budgetMinutes into seconds and begins counting down.
// Thresholds equal to the starting value fire before Start returns, and a
// zero budget expires before Start returns.
func (e *Engine) Start(budgetMinutes float64, thresholds []int, onThreshold func(int), onExpire func()) (*Handle, error) {
	total, err := budgetSeconds(budgetMinutes)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		total:       total,
		remaining:   total,
		thresholds:  make(map[int]struct{}, len(thresholds)),
		fired:       make(map[int]struct{}),
		onThreshold: onThreshold,
		onExpire:    onExpire,
		done:        make(chan struct{}),
	}
	for _, t := range thresholds {
		if t >= 0 {
			h.thresholds[t] = struct{}{}
		}
	}

	h.tickMu.Lock()
	h.tickG.Store(goid())
	more := h.evaluate()
	h.tickG.Store(0)
	h.tickMu.Unlock()

	if !more || h.cancelled.Load() {
		h.finish()
		return h, nil
	}

	src := e.newSource()
	h.srcMu.Lock()
	h.src = src
	h.srcMu.Unlock()
	src.Start(h.tick)
	return h, nil
}

func budgetSeconds(budgetMinutes float64) (int, error) {
	if math.IsNaN(budgetMinutes) || math.IsInf(budgetMinutes, 0) || budgetMinutes < 0 {
		return 0, fmt.Errorf("%w: %v minutes", ErrInvalidBudget, budgetMinutes)
	}
	secs := math.Round(budgetMinutes * 60)
	if secs > maxBudgetSeconds {
		return 0, fmt.Errorf("%w: %v minutes exceeds the maximum", ErrInvalidBudget, budgetMinutes)
	}
	return int(secs), nil
}

func (h *Handle) tick() bool {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()

	if h.cancelled.Load() {
		return false
	}

	h.tickG.Store(goid())
	defer h.tickG.Store(0)

	h.stateMu.Lock()
	if h.expired {
		h.stateMu.Unlock()
		return false
	}
	if h.remaining > 0 {
		h.remaining--
	}
	h.stateMu.Unlock()

	more := h.evaluate()
	if !more {
		h.finish()
	}
	return more
}

// evaluate fires the callbacks due at the current remaining value and
// reports whether further ticks are wanted. Callers hold tickMu.
func (h *Handle) evaluate() bool {
	h.stateMu.Lock()
	remaining := h.remaining
	_, due := h.thresholds[remaining]
	_, already := h.fired[remaining]
	fireThreshold := due && !already
	if fireThreshold {
		h.fired[remaining] = struct{}{}
	}
	expired := remaining == 0
	if expired {
		h.expired = true
	}
	h.stateMu.Unlock()

	if fireThreshold && h.onThreshold != nil && !h.cancelled.Load() {
		h.onThreshold(remaining)
	}
	if expired {
		if h.onExpire != nil && !h.cancelled.Load() {
			h.onExpire()
		}
		return false
	}
	return !h.cancelled.Load()
}

// Cancel stops the countdown. No callback starts after Cancel returns,
// except when Cancel is called from inside a callback of the same handle.
func (h *Handle) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	if h.tickG.Load() != goid() {
		// Wait for a tick that may have started before the flag was set.
		h.tickMu.Lock()
		h.tickMu.Unlock()
	}
	h.finish()
}

// goid returns the id of the calling goroutine as printed in stack traces.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (h *Handle) finish() {
	h.doneOnce.Do(func() {
		h.srcMu.Lock()
		if h.src != nil {
			h.src.Stop()
		}
		h.srcMu.Unlock()
		close(h.done)
	})
}

// Done is closed once the countdown has expired or been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Remaining returns the seconds left.
func (h *Handle) Remaining() int {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.remaining
}

// Total returns the budget in seconds.
func (h *Handle) Total() int {
	return h.total
}

// Expired reports whether the countdown reached zero.
func (h *Handle) Expired() bool {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.expired
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Snapshot returns the current state of the countdown.
func (h *Handle) Snapshot() Snapshot {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()

	fired := make([]int, 0, len(h.fired))
	for t := range h.fired {
		fired = append(fired, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(fired)))

	return Snapshot{
		TotalSeconds:     h.total,
		RemainingSeconds: h.remaining,
		Expired:          h.expired,
		Cancelled:        h.cancelled.Load(),
		FiredThresholds:  fired,
	}
}

// Format renders seconds as m:ss, e.g. 125 -> "2:05".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
