package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorbuddy-backend/internal/mentorapi"
)

func TestBookSingle(t *testing.T) {
	testCases := []struct {
		name    string
		body    map[string]any
		upErr   error
		expCode int
	}{
		{name: "chat by minutes", body: map[string]any{"mentor_id": "m1", "call_type": "chat", "minutes": 10}, expCode: http.StatusCreated},
		{name: "video needs a slot", body: map[string]any{"mentor_id": "m1", "call_type": "video"}, expCode: http.StatusBadRequest},
		{name: "audio needs a mode", body: map[string]any{"mentor_id": "m1", "call_type": "audio"}, expCode: http.StatusBadRequest},
		{
			name:    "upstream rejects",
			body:    map[string]any{"mentor_id": "m1", "call_type": "video", "slot_id": "s1"},
			upErr:   &mentorapi.APIError{Status: 409, Message: "Slot already booked"},
			expCode: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv()
			if tc.upErr != nil {
				e.api.book = func(mentorapi.BookRequest) (*mentorapi.BookResponse, error) { return nil, tc.upErr }
			}
			w := e.do(t, http.MethodPost, "/api/bookings", tc.body)
			assert.Equal(t, tc.expCode, w.Code, w.Body.String())
		})
	}
}

func TestListBookings(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodPost, "/api/bookings", map[string]any{"mentor_id": "m1", "call_type": "chat"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodGet, "/api/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string][]map[string]any](t, w)
	require.Len(t, resp["bookings"], 1)
	assert.Equal(t, "individual", resp["bookings"][0]["kind"])
	assert.Equal(t, "booked", resp["bookings"][0]["status"])

	w = e.do(t, http.MethodGet, "/api/bookings?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookGroup(t *testing.T) {
	testCases := []struct {
		name    string
		session mentorapi.GroupSession
		balance float64
		expCode int
	}{
		{name: "booked", session: mentorapi.GroupSession{ID: "g1", Price: 10, Capacity: 3}, balance: 20, expCode: http.StatusCreated},
		{name: "not enough coins", session: mentorapi.GroupSession{ID: "g1", Price: 30, Capacity: 3}, balance: 20, expCode: http.StatusPaymentRequired},
		{name: "full", session: mentorapi.GroupSession{ID: "g1", Capacity: 1, BookedUsers: []string{"u2"}}, expCode: http.StatusConflict},
		{name: "already joined", session: mentorapi.GroupSession{ID: "g1", Capacity: 3, BookedUsers: []string{"u1"}}, expCode: http.StatusConflict},
		{name: "unknown session", session: mentorapi.GroupSession{ID: "other"}, expCode: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv()
			e.api.groups = []mentorapi.GroupSession{tc.session}
			e.api.wallet = mentorapi.Wallet{Balance: tc.balance}

			w := e.do(t, http.MethodPost, "/api/group-sessions/g1/book", map[string]string{"mentor_id": "m1"})
			assert.Equal(t, tc.expCode, w.Code, w.Body.String())
		})
	}
}

func TestGetGroupSessions(t *testing.T) {
	e := newTestEnv()
	e.api.groups = []mentorapi.GroupSession{
		{ID: "g1", Title: "AMA", Capacity: 2, BookedUsers: []string{"u1", "u2"}},
	}

	w := e.do(t, http.MethodGet, "/api/mentors/m1/group-sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string][]map[string]any](t, w)
	require.Len(t, resp["group_sessions"], 1)
	assert.Equal(t, true, resp["group_sessions"][0]["full"])
	assert.Equal(t, true, resp["group_sessions"][0]["joined"])
	assert.Equal(t, float64(2), resp["group_sessions"][0]["booked"])
}

func TestGetSlots(t *testing.T) {
	e := newTestEnv()
	e.api.slots = []mentorapi.SlotDay{{SlotsDate: "2025-03-10", Slots: []mentorapi.Slot{
		{ID: "s1", CallType: "video"},
		{ID: "s2", CallType: "video", Booked: true},
		{ID: "s3", CallType: "audio"},
	}}}

	w := e.do(t, http.MethodGet, "/api/mentors/m1/slots?date=2025-03-10&call_type=video", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string][]mentorapi.SlotDay](t, w)
	require.Len(t, resp["days"], 1)
	require.Len(t, resp["days"][0].Slots, 1)
	assert.Equal(t, "s1", resp["days"][0].Slots[0].ID)

	w = e.do(t, http.MethodGet, "/api/mentors/m1/slots?date=someday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMentorPackagesIsCached(t *testing.T) {
	e := newTestEnv()
	e.api.packages = []mentorapi.Package{{ID: "p1", PackageName: "Starter"}}

	w := e.do(t, http.MethodGet, "/api/mentors/m1/packages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = e.do(t, http.MethodGet, "/api/mentors/m1/packages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}
