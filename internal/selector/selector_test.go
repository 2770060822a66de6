package selector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slot(id string) Slot {
	return Slot{ID: id, Date: "2025-03-10", Time: "10:00 AM"}
}

func ids(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.ID)
	}
	return out
}

// fakeBooker records every call and fails the configured slot ids.
type fakeBooker struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func newFakeBooker(fail map[string]error) *fakeBooker {
	if fail == nil {
		fail = map[string]error{}
	}
	return &fakeBooker{fail: fail}
}

func (f *fakeBooker) book(_ context.Context, s Slot) (Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s.ID)
	if err, ok := f.fail[s.ID]; ok {
		return Booking{}, err
	}
	return Booking{BookingID: "bk-" + s.ID}, nil
}

func (f *fakeBooker) setFail(fail map[string]error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeBooker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestNew_RejectsNonPositiveQuota(t *testing.T) {
	for _, q := range []int{0, -1} {
		s, err := New("pkg", q)
		assert.ErrorIs(t, err, ErrInvalidQuota)
		assert.Nil(t, s)
	}
}

func TestToggle_QuotaEnforced(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)

	require.NoError(t, s.Toggle(slot("A")))
	require.NoError(t, s.Toggle(slot("B")))

	err = s.Toggle(slot("C"))
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 2, quotaErr.Quota)
	assert.Equal(t, "you can only select 2 slots for this package", err.Error())

	assert.Equal(t, []string{"A", "B"}, ids(s.Selected()))
}

func TestToggle_IsItsOwnInverse(t *testing.T) {
	s, err := New("pkg", 3)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))
	require.NoError(t, s.Toggle(slot("B")))

	before := ids(s.Selected())
	require.NoError(t, s.Toggle(slot("C")))
	require.NoError(t, s.Toggle(slot("C")))
	assert.Equal(t, before, ids(s.Selected()))

	require.NoError(t, s.Toggle(slot("A")))
	assert.Equal(t, []string{"B"}, ids(s.Selected()))
	assert.False(t, s.Contains("A"))
	assert.True(t, s.Contains("B"))
}

func TestToggle_DeselectAtQuotaIsAllowed(t *testing.T) {
	s, err := New("pkg", 1)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))

	require.NoError(t, s.Toggle(slot("A")))
	assert.Empty(t, s.Selected())
	require.NoError(t, s.Toggle(slot("B")))
	assert.Equal(t, []string{"B"}, ids(s.Selected()))
}

func TestToggle_RejectsEmptySlotID(t *testing.T) {
	s, err := New("pkg", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Toggle(Slot{}), ErrInvalidSlot)
}

func TestToggle_NeverExceedsQuota(t *testing.T) {
	const quota = 3
	s, err := New("pkg", quota)
	require.NoError(t, err)

	sequence := []string{"A", "B", "C", "D", "B", "D", "E", "A", "F", "C", "G", "H"}
	for _, id := range sequence {
		_ = s.Toggle(slot(id))
		assert.LessOrEqual(t, len(s.Selected()), quota)
	}
}

func TestValidate(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Validate(), ErrEmptySelection)

	require.NoError(t, s.Toggle(slot("A")))
	assert.NoError(t, s.Validate())
}

func TestCommit_EmptySelection(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)
	booker := newFakeBooker(nil)

	res, err := s.Commit(context.Background(), booker.book)
	assert.ErrorIs(t, err, ErrEmptySelection)
	assert.Nil(t, res)
	assert.Zero(t, booker.callCount())
	assert.Equal(t, PhaseSelecting, s.Phase())
}

func TestCommit_AllSucceed(t *testing.T) {
	s, err := New("pkg", 3)
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Toggle(slot(id)))
	}
	booker := newFakeBooker(nil)

	res, err := s.Commit(context.Background(), booker.book)
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, res.Phase)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Succeeded, 3)
	for i, c := range res.Succeeded {
		assert.Equal(t, "bk-"+c.Slot.ID, c.Booking.BookingID, "index %d", i)
	}
	assert.Equal(t, PhaseCommitted, s.Phase())
	assert.Equal(t, 3, booker.callCount())
}

func TestCommit_PartialFailureNoRollback(t *testing.T) {
	s, err := New("pkg", 3)
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Toggle(slot(id)))
	}
	rejected := errors.New("slot already taken")
	booker := newFakeBooker(map[string]error{"2": rejected})

	res, err := s.Commit(context.Background(), booker.book)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, res.Phase)
	var succeeded []string
	for _, c := range res.Succeeded {
		succeeded = append(succeeded, c.Slot.ID)
	}
	assert.Equal(t, []string{"1", "3"}, succeeded)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2", res.Failed[0].Slot.ID)
	var bfe *BookingFailedError
	require.ErrorAs(t, res.Failed[0].Err, &bfe)
	assert.Equal(t, "2", bfe.SlotID)
	assert.ErrorIs(t, res.Failed[0].Err, rejected)

	// Exactly one request per slot; nothing was undone.
	assert.Equal(t, 3, booker.callCount())
}

func TestCommit_WaitsForAllToSettle(t *testing.T) {
	s, err := New("pkg", 3)
	require.NoError(t, err)
	for _, id := range []string{"fast-fail", "slow-1", "slow-2"} {
		require.NoError(t, s.Toggle(slot(id)))
	}

	var finished atomic.Int32
	book := func(_ context.Context, sl Slot) (Booking, error) {
		if sl.ID == "fast-fail" {
			finished.Add(1)
			return Booking{}, errors.New("rejected")
		}
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return Booking{BookingID: sl.ID}, nil
	}

	res, err := s.Commit(context.Background(), book)
	require.NoError(t, err)
	assert.Equal(t, int32(3), finished.Load())
	assert.Len(t, res.Succeeded, 2)
	assert.Len(t, res.Failed, 1)
}

func TestCommit_PanicBecomesFailure(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))
	require.NoError(t, s.Toggle(slot("B")))

	book := func(_ context.Context, sl Slot) (Booking, error) {
		if sl.ID == "B" {
			panic("boom")
		}
		return Booking{BookingID: sl.ID}, nil
	}

	res, err := s.Commit(context.Background(), book)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, res.Phase)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Err.Error(), "panicked")
}

func TestCommit_RejectsSecondCommitAndToggle(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))
	booker := newFakeBooker(nil)

	_, err = s.Commit(context.Background(), booker.book)
	require.NoError(t, err)

	_, err = s.Commit(context.Background(), booker.book)
	assert.ErrorIs(t, err, ErrNotSelecting)
	assert.ErrorIs(t, s.Toggle(slot("B")), ErrNotSelecting)
	assert.Equal(t, 1, booker.callCount())
}

func TestRetry_OnlyFailedSubset(t *testing.T) {
	s, err := New("pkg", 3)
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Toggle(slot(id)))
	}
	booker := newFakeBooker(map[string]error{"2": errors.New("busy")})

	_, err = s.Commit(context.Background(), booker.book)
	require.NoError(t, err)

	booker.setFail(nil)
	res, err := s.Retry(context.Background(), booker.book)
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, res.Phase)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Succeeded, 3)
	assert.Equal(t, []string{"1", "2", "3", "2"}, sortedPrefix(booker.calls, 3))
	assert.Equal(t, 4, booker.callCount())

	_, err = s.Retry(context.Background(), booker.book)
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

// sortedPrefix sorts the first n calls, which ran concurrently, and keeps
// the remainder in order.
func sortedPrefix(calls []string, n int) []string {
	out := append([]string(nil), calls...)
	head := out[:n]
	for i := 1; i < len(head); i++ {
		for j := i; j > 0 && head[j] < head[j-1]; j-- {
			head[j], head[j-1] = head[j-1], head[j]
		}
	}
	return out
}

func TestRetry_BeforeCommit(t *testing.T) {
	s, err := New("pkg", 1)
	require.NoError(t, err)
	_, err = s.Retry(context.Background(), newFakeBooker(nil).book)
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestCancel_DuringCommit(t *testing.T) {
	s, err := New("pkg", 1)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))

	started := make(chan struct{})
	release := make(chan struct{})
	book := func(_ context.Context, sl Slot) (Booking, error) {
		close(started)
		<-release
		return Booking{BookingID: sl.ID}, nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Commit(context.Background(), book)
		errCh <- err
	}()

	<-started
	s.Cancel()
	s.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not return after cancel")
	}
	close(release)

	assert.True(t, s.Cancelled())
	assert.Nil(t, s.Result())
	assert.ErrorIs(t, s.Toggle(slot("B")), ErrCancelled)
}

func TestCommit_OutlivesCallerContext(t *testing.T) {
	s, err := New("pkg", 2)
	require.NoError(t, err)
	require.NoError(t, s.Toggle(slot("A")))
	require.NoError(t, s.Toggle(slot("B")))

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	booker := newFakeBooker(map[string]error{"B": errors.New("busy")})
	book := func(ctx context.Context, sl Slot) (Booking, error) {
		started.Done()
		<-release
		if err := ctx.Err(); err != nil {
			return Booking{}, err
		}
		return booker.book(ctx, sl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	type commitOut struct {
		res *CommitResult
		err error
	}
	done := make(chan commitOut, 1)
	go func() {
		res, err := s.Commit(ctx, book)
		done <- commitOut{res, err}
	}()

	started.Wait()
	cancel()

	select {
	case <-done:
		t.Fatal("commit returned before its bookings settled")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, PhaseConfirming, s.Phase())

	close(release)
	var out commitOut
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not return after its bookings settled")
	}
	require.NoError(t, out.err)
	assert.Equal(t, PhaseFailed, out.res.Phase)
	require.Len(t, out.res.Succeeded, 1)
	assert.Equal(t, "bk-A", out.res.Succeeded[0].Booking.BookingID)
	require.Len(t, out.res.Failed, 1)
	assert.Equal(t, "B", out.res.Failed[0].Slot.ID)

	require.NotNil(t, s.Result())
	assert.Equal(t, PhaseFailed, s.Phase())

	booker.setFail(nil)
	res, err := s.Retry(context.Background(), booker.book)
	require.NoError(t, err)
	assert.Equal(t, PhaseCommitted, res.Phase)
	assert.Len(t, res.Succeeded, 2)
	assert.Empty(t, res.Failed)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "selecting", PhaseSelecting.String())
	assert.Equal(t, "confirming", PhaseConfirming.String())
	assert.Equal(t, "committed", PhaseCommitted.String())
	assert.Equal(t, "failed", PhaseFailed.String())
}

func TestFailure_MarshalJSON(t *testing.T) {
	f := Failure{Slot: slot("X"), Err: &BookingFailedError{SlotID: "X", Reason: errors.New("taken")}}
	b, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"slot":{"slot_id":"X","date":"2025-03-10","time":"10:00 AM"},"reason":"booking slot X failed: taken"}`, string(b))
}
