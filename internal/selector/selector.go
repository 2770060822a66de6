package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Phase is the lifecycle stage of a booking session.
type Phase int

const (
	PhaseSelecting Phase = iota
	PhaseConfirming
	PhaseCommitted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseConfirming:
		return "confirming"
	case PhaseCommitted:
		return "committed"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Slot is one selected calendar slot.
type Slot struct {
	ID       string `json:"slot_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	CallType string `json:"call_type,omitempty"`
}

// Booking is the remote confirmation of a booked slot.
type Booking struct {
	BookingID   string `json:"booking_id"`
	MeetingLink string `json:"meeting_link,omitempty"`
}

// BookFunc books a single slot against the remote API.
type BookFunc func(ctx context.Context, slot Slot) (Booking, error)

// Confirmed pairs a slot with its booking.
type Confirmed struct {
	Slot    Slot    `json:"slot"`
	Booking Booking `json:"booking"`
}

// Failure pairs a slot with the reason its booking failed.
type Failure struct {
	Slot Slot
	Err  error
}

// MarshalJSON exposes the failure reason as a string.
func (f Failure) MarshalJSON() ([]byte, error) {
	reason := ""
	if f.Err != nil {
		reason = f.Err.Error()
	}
	return json.Marshal(struct {
		Slot   Slot   `json:"slot"`
		Reason string `json:"reason"`
	}{f.Slot, reason})
}

// CommitResult is the outcome of a commit or retry.
type CommitResult struct {
	Phase     Phase       `json:"phase"`
	Succeeded []Confirmed `json:"succeeded"`
	Failed    []Failure   `json:"failed"`
}

// Session accumulates slot selections against a package quota and commits them.
type Session struct {
	mu        sync.Mutex
	packageID string
	quota     int
	selected  []Slot
	phase     Phase

	succeeded []Confirmed
	failed    []Failure
	committed bool

	cancel     chan struct{}
	cancelOnce sync.Once
}

// New opens a session for a package allowing quota bookings.
func New(packageID string, quota int) (*Session, error) {
	if quota <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuota, quota)
	}
	return &Session{
		packageID: packageID,
		quota:     quota,
		phase:     PhaseSelecting,
		cancel:    make(chan struct{}),
	}, nil
}

// PackageID returns the package the session books against.
func (s *Session) PackageID() string {
	return s.packageID
}

// Quota returns the maximum number of selections.
func (s *Session) Quota() int {
	return s.quota
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Selected returns the selections in insertion order.
func (s *Session) Selected() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Slot(nil), s.selected...)
}

// Contains reports whether the slot is selected.
func (s *Session) Contains(slotID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(slotID) >= 0
}

func (s *Session) indexLocked(slotID string) int {
	for i, sel := range s.selected {
		if sel.ID == slotID {
			return i
		}
	}
	return -1
}

// Toggle removes the slot if it is selected, otherwise adds it when the
// quota allows. A rejected toggle leaves the selection untouched.
func (s *Session) Toggle(slot Slot) error {
	if slot.ID == "" {
		return ErrInvalidSlot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isCancelled() {
		return ErrCancelled
	}
	if s.phase != PhaseSelecting {
		return ErrNotSelecting
	}

	if i := s.indexLocked(slot.ID); i >= 0 {
		s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
		return nil
	}
	if len(s.selected) >= s.quota {
		return &QuotaExceededError{Quota: s.quota}
	}
	s.selected = append(s.selected, slot)
	return nil
}

// Validate checks the session can be submitted.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return ErrEmptySelection
	}
	return nil
}

// Commit books every selected slot concurrently and waits for all of them to
// settle, even after ctx is done. Slots that were booked are never rolled back.
func (s *Session) Commit(ctx context.Context, book BookFunc) (*CommitResult, error) {
	s.mu.Lock()
	if s.isCancelled() {
		s.mu.Unlock()
		return nil, ErrCancelled
	}
	if s.phase != PhaseSelecting {
		s.mu.Unlock()
		return nil, ErrNotSelecting
	}
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return nil, ErrEmptySelection
	}
	s.phase = PhaseConfirming
	slots := append([]Slot(nil), s.selected...)
	s.mu.Unlock()

	return s.settle(ctx, slots, book)
}

// Retry re-books only the slots that failed in the previous attempt.
func (s *Session) Retry(ctx context.Context, book BookFunc) (*CommitResult, error) {
	s.mu.Lock()
	if s.isCancelled() {
		s.mu.Unlock()
		return nil, ErrCancelled
	}
	if s.phase != PhaseFailed || len(s.failed) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	s.phase = PhaseConfirming
	slots := make([]Slot, 0, len(s.failed))
	for _, f := range s.failed {
		slots = append(slots, f.Slot)
	}
	s.mu.Unlock()

	return s.settle(ctx, slots, book)
}

func (s *Session) settle(ctx context.Context, slots []Slot, book BookFunc) (*CommitResult, error) {
	succeeded, failed, err := s.bookAll(ctx, slots, book)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.succeeded = append(s.succeeded, succeeded...)
	s.failed = failed
	s.committed = true
	if len(failed) == 0 {
		s.phase = PhaseCommitted
	} else {
		s.phase = PhaseFailed
	}
	return s.resultLocked(), nil
}

type outcome struct {
	booking Booking
	err     error
}

// bookAll issues one request per slot and joins on all of them. Requests are
// detached from ctx cancellation and the join outlives ctx, so the session
// always reaches committed or failed. Only Cancel abandons the wait.
func (s *Session) bookAll(ctx context.Context, slots []Slot, book BookFunc) ([]Confirmed, []Failure, error) {
	outcomes := make([]outcome, len(slots))
	reqCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot Slot) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcome{err: fmt.Errorf("booking request panicked: %v", r)}
				}
			}()
			b, err := book(reqCtx, slot)
			outcomes[i] = outcome{booking: b, err: err}
		}(i, slot)
	}

	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()

	select {
	case <-settled:
	case <-s.cancel:
		return nil, nil, ErrCancelled
	}

	if s.isCancelled() {
		return nil, nil, ErrCancelled
	}

	var succeeded []Confirmed
	var failed []Failure
	for i, o := range outcomes {
		if o.err != nil {
			failed = append(failed, Failure{
				Slot: slots[i],
				Err:  &BookingFailedError{SlotID: slots[i].ID, Reason: o.err},
			})
			continue
		}
		succeeded = append(succeeded, Confirmed{Slot: slots[i], Booking: o.booking})
	}
	return succeeded, failed, nil
}

// Result returns the cumulative outcome, or nil before the first commit.
func (s *Session) Result() *CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.committed {
		return nil
	}
	return s.resultLocked()
}

func (s *Session) resultLocked() *CommitResult {
	return &CommitResult{
		Phase:     s.phase,
		Succeeded: append([]Confirmed(nil), s.succeeded...),
		Failed:    append([]Failure(nil), s.failed...),
	}
}

// Cancel abandons the session. A pending Commit returns ErrCancelled and the
// results of requests still in flight are discarded.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool {
	return s.isCancelled()
}

func (s *Session) isCancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}
