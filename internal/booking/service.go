// Package booking runs package booking flows, single bookings and group
// bookings against the upstream API and records their outcomes.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/model"
	"mentorbuddy-backend/internal/parse"
	"mentorbuddy-backend/internal/selector"
	"mentorbuddy-backend/internal/slotcache"
	"mentorbuddy-backend/internal/store"
)

// Flow retention defaults.
const (
	DefaultFinishedFlowTTL = 15 * time.Minute
	DefaultIdleFlowTTL     = 24 * time.Hour
)

// Booking kinds stored on records.
const (
	KindPackage    = "package"
	KindIndividual = "individual"
	KindGroup      = "group"
)

// Service coordinates booking flows.
type Service struct {
	api    mentorapi.API
	slots  slotcache.Cache
	store  store.Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	flows map[string]*flow

	// finishedTTL applies to committed flows, idleTTL to every other flow
	// not waiting on a commit. Both count from the last activity.
	finishedTTL time.Duration
	idleTTL     time.Duration
}

type flow struct {
	id        string
	userID    string
	mentorID  string
	callType  string
	pkg       mentorapi.Package
	session   *selector.Session
	createdAt time.Time

	activityMu sync.Mutex
	lastActive time.Time
}

// OpenFlowRequest starts a package booking flow.
type OpenFlowRequest struct {
	PackageID string `json:"package_id"`
	MentorID  string `json:"mentor_id"`
	CallType  string `json:"call_type"`
}

// FlowView is the externally visible state of a flow.
type FlowView struct {
	ID          string                 `json:"id"`
	MentorID    string                 `json:"mentor_id"`
	PackageID   string                 `json:"package_id"`
	PackageName string                 `json:"package_name"`
	CallType    string                 `json:"call_type,omitempty"`
	Quota       int                    `json:"quota"`
	Phase       selector.Phase         `json:"phase"`
	Selected    []selector.Slot        `json:"selected"`
	Result      *selector.CommitResult `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewService wires a booking service.
func NewService(api mentorapi.API, slots slotcache.Cache, st store.Store, logger *zap.Logger) *Service {
	return &Service{
		api:    api,
		slots:  slots,
		store:  st,
		logger: logger.Named("booking"),
		now:    time.Now,
		flows:  make(map[string]*flow),

		finishedTTL: DefaultFinishedFlowTTL,
		idleTTL:     DefaultIdleFlowTTL,
	}
}

// SetFlowTTL changes how long committed and idle flows are kept. Zero or
// negative values leave the current setting.
func (s *Service) SetFlowTTL(finished, idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if finished > 0 {
		s.finishedTTL = finished
	}
	if idle > 0 {
		s.idleTTL = idle
	}
}

// Slots returns a mentor's slots for date, served from cache when fresh.
func (s *Service) Slots(ctx context.Context, mentorID, date string) ([]mentorapi.SlotDay, error) {
	if mentorID == "" {
		return nil, invalid("mentor is required")
	}
	if date != "" {
		normalised, err := parse.SlotDate(date)
		if err != nil {
			return nil, invalid(err.Error())
		}
		date = normalised
	}

	days, found, err := s.slots.Get(ctx, mentorID, date)
	if err != nil {
		s.logger.Warn("slot cache read failed; fetching upstream", zap.String("mentor_id", mentorID), zap.Error(err))
	}
	if found {
		return days, nil
	}

	days, err = s.api.FetchSlots(ctx, mentorID, date)
	if err != nil {
		return nil, err
	}
	if err := s.slots.Set(ctx, mentorID, date, days); err != nil {
		s.logger.Warn("slot cache write failed", zap.String("mentor_id", mentorID), zap.Error(err))
	}
	return days, nil
}

// Available keeps the unbooked slots, optionally of one call type, and
// drops days left empty.
func Available(days []mentorapi.SlotDay, callType string) []mentorapi.SlotDay {
	out := make([]mentorapi.SlotDay, 0, len(days))
	for _, d := range days {
		var slots []mentorapi.Slot
		for _, sl := range d.Slots {
			if sl.Booked || (callType != "" && sl.CallType != callType) {
				continue
			}
			slots = append(slots, sl)
		}
		if len(slots) > 0 {
			out = append(out, mentorapi.SlotDay{SlotsDate: d.SlotsDate, Slots: slots})
		}
	}
	return out
}

// OpenFlow fetches the package and opens a selection session sized to its quota.
func (s *Service) OpenFlow(ctx context.Context, userID string, req OpenFlowRequest) (*FlowView, error) {
	if req.PackageID == "" || req.MentorID == "" {
		return nil, invalid("package and mentor are required")
	}

	pkg, err := s.api.FetchPackage(ctx, req.PackageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", req.PackageID, err)
	}
	if pkg.ID == "" {
		pkg.ID = req.PackageID
	}

	session, err := selector.New(pkg.ID, pkg.Quota())
	if err != nil {
		return nil, err
	}

	f := &flow{
		id:        uuid.NewString(),
		userID:    userID,
		mentorID:  req.MentorID,
		callType:  req.CallType,
		pkg:       *pkg,
		session:   session,
		createdAt: s.now(),
	}
	f.lastActive = f.createdAt

	s.mu.Lock()
	s.sweepLocked(f.createdAt)
	s.flows[f.id] = f
	s.mu.Unlock()

	s.logger.Info("booking flow opened",
		zap.String("flow_id", f.id),
		zap.String("package_id", pkg.ID),
		zap.Int("quota", session.Quota()))
	return f.view(), nil
}

// Flow returns the state of a flow.
func (s *Service) Flow(flowID string) (*FlowView, error) {
	f, err := s.lookup(flowID)
	if err != nil {
		return nil, err
	}
	return f.view(), nil
}

// Toggle flips a slot in the flow's selection. The returned view reflects
// the selection even when the toggle is rejected.
func (s *Service) Toggle(flowID string, slot selector.Slot) (*FlowView, error) {
	f, err := s.lookup(flowID)
	if err != nil {
		return nil, err
	}
	if slot.Date != "" {
		if d, err := parse.SlotDate(slot.Date); err == nil {
			slot.Date = d
		}
	}
	if slot.CallType == "" {
		slot.CallType = f.callType
	}
	f.touch(s.now())
	err = f.session.Toggle(slot)
	return f.view(), err
}

// Commit books every selected slot of the flow.
func (s *Service) Commit(ctx context.Context, flowID string) (*FlowView, error) {
	f, err := s.lookup(flowID)
	if err != nil {
		return nil, err
	}

	attempted := f.session.Selected()
	res, err := f.session.Commit(ctx, s.bookFunc(f))
	f.touch(s.now())
	if err != nil {
		return f.view(), err
	}
	s.settled(context.WithoutCancel(ctx), f, attempted, res)
	return f.view(), nil
}

// Retry re-books the slots that failed in the previous attempt.
func (s *Service) Retry(ctx context.Context, flowID string) (*FlowView, error) {
	f, err := s.lookup(flowID)
	if err != nil {
		return nil, err
	}

	var attempted []selector.Slot
	if prev := f.session.Result(); prev != nil {
		for _, fl := range prev.Failed {
			attempted = append(attempted, fl.Slot)
		}
	}
	res, err := f.session.Retry(ctx, s.bookFunc(f))
	f.touch(s.now())
	if err != nil {
		return f.view(), err
	}
	s.settled(context.WithoutCancel(ctx), f, attempted, res)
	return f.view(), nil
}

// Cancel abandons a flow. Requests already in flight are not undone.
func (s *Service) Cancel(flowID string) error {
	s.mu.Lock()
	f, ok := s.flows[flowID]
	if ok {
		delete(s.flows, flowID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	f.session.Cancel()
	s.logger.Info("booking flow cancelled", zap.String("flow_id", flowID))
	return nil
}

// Flows lists the open flows of a user, oldest first.
func (s *Service) Flows(userID string) []FlowView {
	s.mu.Lock()
	s.sweepLocked(s.now())
	var matched []*flow
	for _, f := range s.flows {
		if f.userID == userID {
			matched = append(matched, f)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].createdAt.Before(matched[j].createdAt) })
	views := make([]FlowView, 0, len(matched))
	for _, f := range matched {
		views = append(views, *f.view())
	}
	return views
}

func (s *Service) bookFunc(f *flow) selector.BookFunc {
	return func(ctx context.Context, slot selector.Slot) (selector.Booking, error) {
		resp, err := s.api.BookSlot(ctx, mentorapi.BookRequest{
			UserID:    f.userID,
			MentorID:  f.mentorID,
			SlotID:    slot.ID,
			CallType:  slot.CallType,
			Type:      KindPackage,
			PackageID: f.pkg.ID,
			Date:      slot.Date,
			SlotTime:  slot.Time,
		})
		if err != nil {
			return selector.Booking{}, err
		}
		return selector.Booking{BookingID: resp.Reference(), MeetingLink: resp.MeetingLink()}, nil
	}
}

// settled records the outcome of the slots attempted in one commit or retry
// and drops the mentor's cached slots.
func (s *Service) settled(ctx context.Context, f *flow, attempted []selector.Slot, res *selector.CommitResult) {
	tried := make(map[string]bool, len(attempted))
	for _, sl := range attempted {
		tried[sl.ID] = true
	}

	now := s.now()
	var records []model.BookingRecord
	booked := 0
	for _, c := range res.Succeeded {
		if !tried[c.Slot.ID] {
			continue
		}
		booked++
		rec := s.record(f, c.Slot, now)
		rec.Status = model.BookingStatusBooked
		rec.RemoteBookingID = c.Booking.BookingID
		rec.MeetingLink = c.Booking.MeetingLink
		records = append(records, rec)
	}
	for _, fl := range res.Failed {
		rec := s.record(f, fl.Slot, now)
		rec.Status = model.BookingStatusFailed
		if fl.Err != nil {
			rec.Reason = fl.Err.Error()
		}
		records = append(records, rec)
	}

	if err := s.store.SaveBookingRecords(ctx, records); err != nil {
		s.logger.Error("failed to record booking outcome", zap.String("flow_id", f.id), zap.Error(err))
	}
	if booked > 0 {
		s.invalidate(ctx, f.mentorID)
	}

	fields := []zap.Field{
		zap.String("flow_id", f.id),
		zap.Stringer("phase", res.Phase),
		zap.Int("booked", booked),
		zap.Int("failed", len(res.Failed)),
	}
	if res.Phase == selector.PhaseFailed {
		s.logger.Warn("booking flow partially failed", fields...)
	} else {
		s.logger.Info("booking flow committed", fields...)
	}
}

func (s *Service) record(f *flow, slot selector.Slot, now time.Time) model.BookingRecord {
	return model.BookingRecord{
		ID:        uuid.New(),
		FlowID:    f.id,
		UserID:    f.userID,
		MentorID:  f.mentorID,
		PackageID: f.pkg.ID,
		SlotID:    slot.ID,
		Date:      slot.Date,
		Time:      slot.Time,
		CallType:  slot.CallType,
		Kind:      KindPackage,
		CreatedAt: now,
	}
}

func (s *Service) invalidate(ctx context.Context, mentorID string) {
	if err := s.slots.Invalidate(ctx, mentorID); err != nil {
		s.logger.Warn("failed to invalidate cached slots", zap.String("mentor_id", mentorID), zap.Error(err))
	}
}

// SingleResult is the confirmation of a single or group booking.
type SingleResult struct {
	RecordID    string `json:"record_id"`
	BookingID   string `json:"booking_id"`
	MeetingLink string `json:"meeting_link,omitempty"`
}

// BookSingle books one session by preferred time or slot.
func (s *Service) BookSingle(ctx context.Context, userID string, req SingleRequest) (*SingleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.api.BookSlot(ctx, mentorapi.BookRequest{
		UserID:   userID,
		MentorID: req.MentorID,
		SlotID:   req.SlotID,
		CallType: req.CallType,
		Type:     req.SessionType,
		Date:     req.Date,
		Minutes:  req.Minutes,
	})

	rec := model.BookingRecord{
		ID:        uuid.New(),
		UserID:    userID,
		MentorID:  req.MentorID,
		SlotID:    req.SlotID,
		Date:      req.Date,
		CallType:  req.CallType,
		Kind:      KindIndividual,
		CreatedAt: s.now(),
	}
	if err != nil {
		rec.Status = model.BookingStatusFailed
		rec.Reason = err.Error()
		s.save(ctx, rec)
		return nil, err
	}

	rec.Status = model.BookingStatusBooked
	rec.RemoteBookingID = resp.Reference()
	rec.MeetingLink = resp.MeetingLink()
	s.save(ctx, rec)
	if req.SlotID != "" {
		s.invalidate(ctx, req.MentorID)
	}

	s.logger.Info("session booked", zap.String("mentor_id", req.MentorID), zap.String("call_type", req.CallType))
	return &SingleResult{RecordID: rec.ID.String(), BookingID: rec.RemoteBookingID, MeetingLink: rec.MeetingLink}, nil
}

// BookGroup books a seat in a mentor's group session after checking the
// wallet balance, the capacity and prior bookings.
func (s *Service) BookGroup(ctx context.Context, userID, mentorID, sessionID string) (*SingleResult, error) {
	if userID == "" {
		return nil, ErrUnknownUser
	}
	if mentorID == "" || sessionID == "" {
		return nil, invalid("mentor and group session are required")
	}

	sessions, err := s.api.FetchGroupSessions(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group sessions: %w", err)
	}
	var gs *mentorapi.GroupSession
	for i := range sessions {
		if sessions[i].ID == sessionID {
			gs = &sessions[i]
			break
		}
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %s", ErrGroupSessionNotFound, sessionID)
	}

	wallet, err := s.api.FetchWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}
	if wallet.Balance < gs.Price {
		return nil, &InsufficientBalanceError{Need: gs.Price, Have: wallet.Balance}
	}
	if gs.Full() {
		return nil, ErrGroupFull
	}
	if gs.HasUser(userID) {
		return nil, ErrAlreadyBooked
	}

	booked, err := s.api.BookGroupSession(ctx, sessionID, userID)
	if err != nil {
		var apiErr *mentorapi.APIError
		if errors.As(err, &apiErr) && apiErr.Conflict() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyBooked, apiErr.Message)
		}
		return nil, err
	}

	rec := model.BookingRecord{
		ID:              uuid.New(),
		UserID:          userID,
		MentorID:        mentorID,
		SlotID:          sessionID,
		Date:            gs.SessionDate,
		Time:            gs.SessionTime,
		Kind:            KindGroup,
		Status:          model.BookingStatusBooked,
		RemoteBookingID: booked.ID,
		CreatedAt:       s.now(),
	}
	s.save(ctx, rec)

	s.logger.Info("group session booked", zap.String("session_id", sessionID), zap.Float64("price", gs.Price))
	return &SingleResult{RecordID: rec.ID.String(), BookingID: booked.ID}, nil
}

// Records lists the stored booking outcomes of a user.
func (s *Service) Records(ctx context.Context, userID string, limit int) ([]model.BookingRecord, error) {
	return s.store.ListBookingRecords(ctx, userID, limit)
}

func (s *Service) save(ctx context.Context, rec model.BookingRecord) {
	if err := s.store.SaveBookingRecords(ctx, []model.BookingRecord{rec}); err != nil {
		s.logger.Error("failed to record booking", zap.String("kind", rec.Kind), zap.Error(err))
	}
}

func (s *Service) lookup(flowID string) (*flow, error) {
	s.mu.Lock()
	s.sweepLocked(s.now())
	f, ok := s.flows[flowID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	return f, nil
}

// sweepLocked forgets flows past their TTL. Flows waiting on a commit are
// kept. Callers hold s.mu.
func (s *Service) sweepLocked(now time.Time) {
	for id, f := range s.flows {
		ttl := s.idleTTL
		switch f.session.Phase() {
		case selector.PhaseConfirming:
			continue
		case selector.PhaseCommitted:
			ttl = s.finishedTTL
		}
		if now.Sub(f.idleSince()) < ttl {
			continue
		}
		delete(s.flows, id)
		f.session.Cancel()
		s.logger.Debug("booking flow expired", zap.String("flow_id", id), zap.Stringer("phase", f.session.Phase()))
	}
}

func (f *flow) touch(now time.Time) {
	f.activityMu.Lock()
	defer f.activityMu.Unlock()
	f.lastActive = now
}

func (f *flow) idleSince() time.Time {
	f.activityMu.Lock()
	defer f.activityMu.Unlock()
	return f.lastActive
}

func (f *flow) view() *FlowView {
	return &FlowView{
		ID:          f.id,
		MentorID:    f.mentorID,
		PackageID:   f.pkg.ID,
		PackageName: f.pkg.Name(),
		CallType:    f.callType,
		Quota:       f.session.Quota(),
		Phase:       f.session.Phase(),
		Selected:    f.session.Selected(),
		Result:      f.session.Result(),
		CreatedAt:   f.createdAt,
	}
}
