package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mentorbuddy-backend/internal/booking"
	"mentorbuddy-backend/internal/countdown"
	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/model"
	"mentorbuddy-backend/internal/slotcache"
	"mentorbuddy-backend/internal/store"
	"mentorbuddy-backend/internal/timers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAPI serves canned upstream data.
type stubAPI struct {
	mu        sync.Mutex
	slots     []mentorapi.SlotDay
	pkg       *mentorapi.Package
	packages  []mentorapi.Package
	groups    []mentorapi.GroupSession
	wallet    mentorapi.Wallet
	calls     []mentorapi.Call
	recording mentorapi.Recording
	err       error
	book      func(req mentorapi.BookRequest) (*mentorapi.BookResponse, error)
	booked    []mentorapi.BookRequest
}

func (s *stubAPI) FetchSlots(context.Context, string, string) ([]mentorapi.SlotDay, error) {
	return s.slots, s.err
}

func (s *stubAPI) BookSlot(_ context.Context, req mentorapi.BookRequest) (*mentorapi.BookResponse, error) {
	s.mu.Lock()
	s.booked = append(s.booked, req)
	s.mu.Unlock()
	if s.book != nil {
		return s.book(req)
	}
	return &mentorapi.BookResponse{ID: "b-" + req.SlotID}, nil
}

func (s *stubAPI) FetchPackage(context.Context, string) (*mentorapi.Package, error) {
	return s.pkg, s.err
}

func (s *stubAPI) FetchMentorPackages(context.Context, string) ([]mentorapi.Package, error) {
	return s.packages, s.err
}

func (s *stubAPI) FetchUserPackages(context.Context, string, string) ([]mentorapi.Package, error) {
	return s.packages, s.err
}

func (s *stubAPI) FetchGroupSessions(context.Context, string) ([]mentorapi.GroupSession, error) {
	return s.groups, s.err
}

func (s *stubAPI) BookGroupSession(_ context.Context, sessionID, _ string) (*mentorapi.GroupSession, error) {
	return &mentorapi.GroupSession{ID: sessionID}, s.err
}

func (s *stubAPI) FetchWallet(context.Context) (*mentorapi.Wallet, error) {
	return &s.wallet, s.err
}

func (s *stubAPI) FetchMyCalls(context.Context) ([]mentorapi.Call, error) {
	return s.calls, s.err
}

func (s *stubAPI) FetchRecording(context.Context, string) (*mentorapi.Recording, error) {
	return &s.recording, s.err
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu      sync.Mutex
	records []model.BookingRecord
	subs    map[string]model.PushSubscription
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[string]model.PushSubscription)}
}

func (m *memStore) SaveBookingRecords(_ context.Context, records []model.BookingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memStore) ListBookingRecords(_ context.Context, userID string, _ int) ([]model.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BookingRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub *model.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Endpoint] = *sub
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, endpoint string) (*model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[endpoint]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sub, nil
}

func (m *memStore) DeleteSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, endpoint)
	return nil
}

func (m *memStore) SubscriptionsFor(_ context.Context, owner string) ([]model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range m.subs {
		if s.Owner == owner {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DB() *gorm.DB { return nil }

type testEnv struct {
	router *gin.Engine
	api    *stubAPI
	store  *memStore
	timers *timers.Registry
	clock  *countdown.VirtualClock
}

func newTestEnv(opts ...func(*Deps)) *testEnv {
	upstream := &stubAPI{}
	st := newMemStore()
	clock := countdown.NewVirtualClock()
	engine := countdown.NewEngine(func() countdown.TickSource { return clock })
	registry := timers.NewRegistry(engine, nil, []int{120, 60}, zap.NewNop())
	svc := booking.NewService(upstream, slotcache.NewMemory(time.Minute), st, zap.NewNop())

	deps := Deps{
		Store:    st,
		Booking:  svc,
		Timers:   registry,
		Upstream: upstream,
		UserID:   "u1",
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router := NewRouter(deps)
	return &testEnv{router: router, api: upstream, store: st, timers: registry, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}
