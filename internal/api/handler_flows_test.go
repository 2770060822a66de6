package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorbuddy-backend/internal/mentorapi"
)

type flowResponse struct {
	ID       string `json:"id"`
	Quota    int    `json:"quota"`
	Phase    string `json:"phase"`
	Selected []struct {
		SlotID string `json:"slot_id"`
	} `json:"selected"`
	Result *struct {
		Succeeded []struct {
			Booking struct {
				BookingID string `json:"booking_id"`
			} `json:"booking"`
		} `json:"succeeded"`
		Failed []struct {
			Slot struct {
				SlotID string `json:"slot_id"`
			} `json:"slot"`
			Reason string `json:"reason"`
		} `json:"failed"`
	} `json:"result"`
}

func openTestFlow(t *testing.T, e *testEnv, quota int) flowResponse {
	t.Helper()
	e.api.pkg = &mentorapi.Package{ID: "p1", TotalSession: quota}
	w := e.do(t, http.MethodPost, "/api/flows", map[string]string{"package_id": "p1", "mentor_id": "m1", "call_type": "video"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[flowResponse](t, w)
}

func toggle(t *testing.T, e *testEnv, flowID, slotID string) (int, []byte) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/flows/"+flowID+"/toggle",
		map[string]string{"slot_id": slotID, "date": "2025-03-10", "time": "10:00"})
	return w.Code, w.Body.Bytes()
}

func TestFlow_OpenAndGet(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 2)
	assert.Equal(t, 2, flow.Quota)
	assert.Equal(t, "selecting", flow.Phase)

	w := e.do(t, http.MethodGet, "/api/flows/"+flow.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/flows/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/flows", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]flowResponse](t, w)["flows"], 1)
}

func TestFlow_OpenUpstreamError(t *testing.T) {
	e := newTestEnv()
	e.api.err = &mentorapi.APIError{Status: 404, Message: "Package not found"}

	w := e.do(t, http.MethodPost, "/api/flows", map[string]string{"package_id": "p1", "mentor_id": "m1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Package not found"}`, w.Body.String())
}

func TestFlow_ToggleBeyondQuota(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 1)

	code, _ := toggle(t, e, flow.ID, "s1")
	require.Equal(t, http.StatusOK, code)

	code, body := toggle(t, e, flow.ID, "s2")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(body), "you can only select 1 slots for this package")
	assert.Contains(t, string(body), `"slot_id":"s1"`)

	w := e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/toggle", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlow_CommitEmptySelection(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 2)

	w := e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/commit", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlow_CommitAllSucceed(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 2)
	toggle(t, e, flow.ID, "s1")
	toggle(t, e, flow.ID, "s2")

	w := e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/commit", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[flowResponse](t, w)
	assert.Equal(t, "committed", got.Phase)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.Succeeded, 2)
	assert.Len(t, e.store.records, 2)

	code, _ := toggle(t, e, flow.ID, "s3")
	assert.Equal(t, http.StatusConflict, code, "a committed flow no longer accepts toggles")
}

func TestFlow_PartialFailureThenRetry(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 2)
	toggle(t, e, flow.ID, "s1")
	toggle(t, e, flow.ID, "s2")

	e.api.book = func(req mentorapi.BookRequest) (*mentorapi.BookResponse, error) {
		if req.SlotID == "s2" {
			return nil, &mentorapi.NetworkError{Method: "PUT", URL: "/slot/book", Err: errors.New("connection reset")}
		}
		return &mentorapi.BookResponse{ID: "b-" + req.SlotID}, nil
	}

	w := e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/commit", nil)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	got := decode[flowResponse](t, w)
	assert.Equal(t, "failed", got.Phase)
	require.Len(t, got.Result.Failed, 1)
	assert.Equal(t, "s2", got.Result.Failed[0].Slot.SlotID)
	assert.Contains(t, got.Result.Failed[0].Reason, "connection reset")

	e.api.book = nil
	w = e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/retry", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got = decode[flowResponse](t, w)
	assert.Equal(t, "committed", got.Phase)
	assert.Len(t, got.Result.Succeeded, 2)

	w = e.do(t, http.MethodPost, "/api/flows/"+flow.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFlow_Cancel(t *testing.T) {
	e := newTestEnv()
	flow := openTestFlow(t, e, 1)

	w := e.do(t, http.MethodDelete, "/api/flows/"+flow.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodDelete, "/api/flows/"+flow.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
