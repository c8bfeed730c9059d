/*
handlers_test.go - End-to-end API tests

Drives the full stack (router, actor middleware, handlers, engine,
sqlite store) through httptest with the demo station seeded.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/shift-engine/api"
	"github.com/forecourt/shift-engine/engine"
	"github.com/forecourt/shift-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := engine.NewService(store, store)
	handler := api.NewHandler(eng, store, store, zerolog.Nop())
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)

	// Seed the demo station through the API itself.
	resp, err := http.Post(server.URL+"/api/scenarios/demo", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return server
}

// doAs performs a request with the given user in the auth header and
// decodes the JSON response into out (when out is non-nil).
func doAs(t *testing.T, server *httptest.Server, userID, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func startShiftAs(t *testing.T, server *httptest.Server, userID string, nozzles []string) api.ShiftDTO {
	t.Helper()
	var shift api.ShiftDTO
	resp := doAs(t, server, userID, http.MethodPost, "/api/shifts",
		api.StartShiftRequest{NozzleIDs: nozzles}, &shift)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return shift
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_RequiresKnownUser(t *testing.T) {
	server := newTestServer(t)

	resp := doAs(t, server, "", http.MethodGet, "/api/shifts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doAs(t, server, "user-nobody", http.MethodGet, "/api/shifts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/shifts", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// SHIFT LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_FullShiftLifecycle(t *testing.T) {
	server := newTestServer(t)

	// Start a shift on two nozzles.
	shift := startShiftAs(t, server, "user-asha", []string{"nozzle-1", "nozzle-2"})
	assert.Equal(t, "OPEN", shift.Status)
	require.Len(t, shift.Readings, 2)

	// The active endpoint finds it.
	var active api.ShiftDTO
	resp := doAs(t, server, "user-asha", http.MethodGet, "/api/shifts/active", nil, &active)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, shift.ID, active.ID)

	// Close both readings. Demo prices: petrol 102.50, diesel 89.90.
	for _, r := range shift.Readings {
		closing := "100"
		resp := doAs(t, server, "user-asha", http.MethodPut,
			fmt.Sprintf("/api/shifts/%s/readings/%s", shift.ID, r.ID),
			api.UpdateReadingRequest{ClosingReading: &closing}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Record a payment. Expected revenue: 100*102.50 + 100*89.90 = 19240.
	var payment api.PaymentDTO
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/payments",
		api.PaymentRequest{PaymentMethodID: "pm-cash", Amount: "19000"}, &payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user-asha", payment.CreatedByUserID)

	// Live summary preview.
	var summary api.SummaryDTO
	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/shifts/"+shift.ID+"/summary", nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "19240", summary.TotalExpected)
	assert.Equal(t, "-240", summary.Variance)

	// Complete.
	var completed api.ShiftDTO
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/complete",
		api.CompleteShiftRequest{Notes: "till short 240"}, &completed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING_REVIEW", completed.Status)
	require.NotNil(t, completed.Summary)
	assert.Equal(t, "-240", completed.Summary.Variance)

	// Verify and archive as the manager.
	var verified api.ShiftDTO
	resp = doAs(t, server, "user-mira", http.MethodPost, "/api/shifts/"+shift.ID+"/verify", nil, &verified)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VERIFIED", verified.Status)

	var archived api.ShiftDTO
	resp = doAs(t, server, "user-mira", http.MethodPost, "/api/shifts/"+shift.ID+"/archive", nil, &archived)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ARCHIVED", archived.Status)
}

func TestAPI_ErrorMapping(t *testing.T) {
	server := newTestServer(t)

	// Validation: no nozzles.
	resp := doAs(t, server, "user-asha", http.MethodPost, "/api/shifts",
		api.StartShiftRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Not found: unknown nozzle.
	resp = doAs(t, server, "user-asha", http.MethodPost, "/api/shifts",
		api.StartShiftRequest{NozzleIDs: []string{"nozzle-99"}}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	shift := startShiftAs(t, server, "user-asha", []string{"nozzle-1"})

	// Conflict: second open shift.
	resp = doAs(t, server, "user-asha", http.MethodPost, "/api/shifts",
		api.StartShiftRequest{NozzleIDs: []string{"nozzle-2"}}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unprocessable: completing with an open reading.
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/complete", api.CompleteShiftRequest{}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Forbidden: another attendant peeking at the shift.
	resp = doAs(t, server, "user-bo", http.MethodGet, "/api/shifts/"+shift.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Forbidden: attendant verifying.
	closing := "10"
	resp = doAs(t, server, "user-asha", http.MethodPut,
		fmt.Sprintf("/api/shifts/%s/readings/%s", shift.ID, shift.Readings[0].ID),
		api.UpdateReadingRequest{ClosingReading: &closing}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/complete", api.CompleteShiftRequest{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doAs(t, server, "user-asha", http.MethodPost, "/api/shifts/"+shift.ID+"/verify", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Bad decimal in a payment.
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/payments",
		api.PaymentRequest{PaymentMethodID: "pm-cash", Amount: "not-a-number"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_EditRequestFlow(t *testing.T) {
	server := newTestServer(t)

	// Bring a shift to VERIFIED.
	shift := startShiftAs(t, server, "user-asha", []string{"nozzle-1"})
	closing := "50"
	resp := doAs(t, server, "user-asha", http.MethodPut,
		fmt.Sprintf("/api/shifts/%s/readings/%s", shift.ID, shift.Readings[0].ID),
		api.UpdateReadingRequest{ClosingReading: &closing}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doAs(t, server, "user-asha", http.MethodPost,
		"/api/shifts/"+shift.ID+"/complete", api.CompleteShiftRequest{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doAs(t, server, "user-mira", http.MethodPost, "/api/shifts/"+shift.ID+"/verify", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Too-short reason is rejected.
	resp = doAs(t, server, "user-mira", http.MethodPost,
		"/api/shifts/"+shift.ID+"/edit-requests",
		api.CreateEditRequestRequest{Reason: "typo"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The manager requests a correction.
	var request api.EditRequestDTO
	resp = doAs(t, server, "user-mira", http.MethodPost,
		"/api/shifts/"+shift.ID+"/edit-requests",
		api.CreateEditRequestRequest{Reason: "nozzle-1 closing looks transposed"}, &request)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PENDING", request.Status)

	// A second pending request conflicts.
	resp = doAs(t, server, "user-bo", http.MethodPost,
		"/api/shifts/"+shift.ID+"/edit-requests",
		api.CreateEditRequestRequest{Reason: "same finding, different eyes"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The requester may not approve it; the owning attendant does.
	resp = doAs(t, server, "user-mira", http.MethodPost, "/api/edit-requests/"+request.ID+"/approve", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var approved api.EditRequestDTO
	resp = doAs(t, server, "user-asha", http.MethodPost, "/api/edit-requests/"+request.ID+"/approve", nil, &approved)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "APPROVED", approved.Status)

	// The shift is editable again.
	var reopened api.ShiftDTO
	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/shifts/"+shift.ID, nil, &reopened)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING_REVIEW", reopened.Status)
	assert.Nil(t, reopened.VerifiedAt)

	corrected := "60"
	resp = doAs(t, server, "user-asha", http.MethodPut,
		fmt.Sprintf("/api/shifts/%s/readings/%s", shift.ID, shift.Readings[0].ID),
		api.UpdateReadingRequest{ClosingReading: &corrected}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// History shows the resolved request; the conflicted duplicate was
	// never recorded.
	var requests []api.EditRequestDTO
	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/shifts/"+shift.ID+"/edit-requests", nil, &requests)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, requests, 1)
	assert.Equal(t, "APPROVED", requests[0].Status)
}

// =============================================================================
// CATALOG AND UTILITIES
// =============================================================================

func TestAPI_CatalogEndpoints(t *testing.T) {
	server := newTestServer(t)

	var nozzles []map[string]string
	resp := doAs(t, server, "user-asha", http.MethodGet, "/api/catalog/nozzles", nil, &nozzles)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, nozzles, 4)

	var methods []map[string]string
	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/catalog/payment-methods", nil, &methods)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, methods, 3)
}

func TestAPI_SuggestedName(t *testing.T) {
	server := newTestServer(t)

	var name api.ShiftNameDTO
	resp := doAs(t, server, "user-asha", http.MethodGet, "/api/shifts/name", nil, &name)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} (Morning|Afternoon|Evening|Night)$`, name.Name)
}

func TestAPI_ListFilters(t *testing.T) {
	server := newTestServer(t)

	startShiftAs(t, server, "user-asha", []string{"nozzle-1"})
	startShiftAs(t, server, "user-bo", []string{"nozzle-2"})

	// Managers see both open shifts.
	var shifts []api.ShiftDTO
	resp := doAs(t, server, "user-mira", http.MethodGet, "/api/shifts?status=OPEN", nil, &shifts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, shifts, 2)

	// Attendants only their own.
	resp = doAs(t, server, "user-asha", http.MethodGet, "/api/shifts", nil, &shifts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, shifts, 1)
	assert.Equal(t, "user-asha", shifts[0].AttendantID)

	// Unknown status is rejected before touching the engine.
	resp = doAs(t, server, "user-mira", http.MethodGet, "/api/shifts?status=BOGUS", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
