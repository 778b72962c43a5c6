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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardslot/internal/availability"
	"guardslot/internal/booking"
	"guardslot/internal/catalog"
	"guardslot/internal/checkout"
	"guardslot/internal/events"
	"guardslot/internal/hold"
	"guardslot/internal/model"
)

var testNow = time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	providers map[string]*model.Provider
}

func (f *fakeSource) ProviderByAPIKey(_ context.Context, apiKey string) (*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.providers {
		if p.APIKey == apiKey {
			return p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeSource) ProviderByID(_ context.Context, id string) (*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeSource) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.providers, id)
}

type testServer struct {
	*HTTPServer
	source   *fakeSource
	sessions *booking.SessionStore
	events   []string
}

func setupTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	source := &fakeSource{providers: map[string]*model.Provider{
		"p1": {
			ID:       "p1",
			APIKey:   "key-1",
			Name:     "Dr. Rivera",
			Business: "Rivera Clinic",
			Timezone: "UTC",
			Version:  1,
			Services: []model.Service{{ID: "s1", Name: "Consultation", Duration: 45, Price: 85}},
			Availability: []model.AvailabilityRule{
				{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", BreakTimes: []model.BreakTime{{Start: "12:00", End: "13:00"}}},
				{DayOfWeek: 3, StartTime: "09:00", EndTime: "12:00"},
			},
		},
	}}

	clock := availability.FixedClock(testNow)
	ts := &testServer{source: source}
	bus := events.NewBus(nil)
	bus.Subscribe("*", func(e events.Event) error {
		ts.events = append(ts.events, e.Type)
		return nil
	})

	ts.sessions = booking.NewSessionStore(0, clock)
	svc := checkout.NewService(hold.NewMemoryHolder(clock.Now), checkout.SimulatedPayments{}, bus, clock, time.Minute, nil)

	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1000
		cfg.Burst = 1000
	}
	ts.HTTPServer = NewHTTPServer(cfg, source, ts.sessions, svc, bus, clock, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) startSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/book/key-1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec).ID
}

func TestHandleProvider(t *testing.T) {
	ts := setupTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/api/v1/book/key-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[ProviderSummary](t, rec)
	assert.Equal(t, "Dr. Rivera", summary.Name)
	assert.Equal(t, "Consultation", summary.Service.Name)
	assert.NotContains(t, rec.Body.String(), "key-1")

	rec = ts.do(t, http.MethodGet, "/api/v1/book/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider not found", decode[errorResponse](t, rec).Error)
}

func TestBookingFlow(t *testing.T) {
	ts := setupTestServer(t, Config{})
	id := ts.startSession(t)
	base := "/api/v1/sessions/" + id

	rec := ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[sessionResponse](t, rec)
	assert.Equal(t, model.StepDate, snap.CurrentStep)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, 60, snap.Booking.Duration)
	assert.Equal(t, 2026, snap.Year)
	assert.Equal(t, 1, snap.Month)

	// Calendar is memoized per session.
	rec = ts.do(t, http.MethodGet, base+"/calendar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cal := decode[calendarResponse](t, rec)
	assert.Len(t, cal.Days, availability.GridSize)
	assert.False(t, cal.Cached)
	assert.True(t, decode[calendarResponse](t, ts.do(t, http.MethodGet, base+"/calendar", nil)).Cached)

	// Saturday, past day and a day outside the visible month are refused.
	for _, date := range []string{"2026-01-03", "2026-01-01", "2026-02-02"} {
		rec = ts.do(t, http.MethodPost, base+"/date", dateRequest{Date: date})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, date)
	}
	rec = ts.do(t, http.MethodPost, base+"/date", dateRequest{Date: "05/01/2026"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Slot before date is a conflict.
	rec = ts.do(t, http.MethodPost, base+"/slot", slotRequest{SlotID: "2026-01-05-9:00 AM"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/date", dateRequest{Date: "2026-01-05"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decode[sessionResponse](t, rec)
	assert.Equal(t, model.StepTime, snap.CurrentStep)
	assert.Equal(t, 25, snap.Progress)

	rec = ts.do(t, http.MethodGet, base+"/slots?date=2026-01-05&available=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[slotsResponse](t, rec)
	assert.Len(t, slots.Slots, 14)

	rec = ts.do(t, http.MethodGet, base+"/slots?date=2026-01-05", nil)
	assert.Len(t, decode[slotsResponse](t, rec).Slots, 16)

	rec = ts.do(t, http.MethodPost, base+"/slot", slotRequest{SlotID: "2026-01-05-12:00 PM"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/slot", slotRequest{SlotID: "2026-01-05-9:00 AM"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decode[sessionResponse](t, rec)
	assert.Equal(t, model.StepDetails, snap.CurrentStep)
	assert.Equal(t, 45, snap.Booking.Duration)
	assert.Equal(t, 85.0, snap.Booking.TotalPrice)

	rec = ts.do(t, http.MethodPost, base+"/step", stepRequest{Step: model.StepPayment})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodPost, base+"/step", stepRequest{Step: "confirm"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/details", model.Customer{FirstName: "Ada", Email: "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	verr := decode[errorResponse](t, rec)
	assert.Equal(t, "Please enter a valid email", verr.Fields["email"])
	assert.Equal(t, "Last name is required", verr.Fields["last_name"])

	rec = ts.do(t, http.MethodPost, base+"/details", model.Customer{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+1 555 0100",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decode[sessionResponse](t, rec)
	assert.Equal(t, model.StepPayment, snap.CurrentStep)
	assert.Equal(t, 75, snap.Progress)
	require.NotNil(t, snap.Customer)

	rec = ts.do(t, http.MethodPost, base+"/payment", checkout.Instrument{CardNumber: "4242"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/payment", checkout.Instrument{
		CardNumber: "4242-4242-4242-4242-99", ExpiryDate: "1228", CVV: "123", NameOnCard: " Ada Lovelace ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[checkout.Receipt](t, rec)
	assert.Equal(t, "2026-01-05-9:00 AM", receipt.SlotID)
	assert.Equal(t, 85.0, receipt.Amount)
	assert.Equal(t, "4242", receipt.CardLast4)

	rec = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{
		events.TypeSessionStarted,
		events.TypeDateSelected,
		events.TypeSlotSelected,
		events.TypeDetailsSubmitted,
		events.TypeBookingCompleted,
	}, ts.events)
}

func TestSlotTakenByAnotherSession(t *testing.T) {
	ts := setupTestServer(t, Config{})
	card := checkout.Instrument{CardNumber: "4242424242424242", ExpiryDate: "12/28", CVV: "123", NameOnCard: "Ada"}
	customer := model.Customer{FirstName: "Ada", LastName: "L", Email: "a@b.co", Phone: "5550100"}

	prepare := func() string {
		id := ts.startSession(t)
		base := "/api/v1/sessions/" + id
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/date", dateRequest{Date: "2026-01-07"}).Code)
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/slot", slotRequest{SlotID: "2026-01-07-10:30 AM"}).Code)
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/details", customer).Code)
		return base
	}

	first, second := prepare(), prepare()
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, first+"/payment", card).Code)

	rec := ts.do(t, http.MethodPost, second+"/payment", card)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, checkout.ErrSlotTaken.Error(), decode[errorResponse](t, rec).Error)

	snap := decode[sessionResponse](t, ts.do(t, http.MethodGet, second, nil))
	assert.Equal(t, model.StepTime, snap.CurrentStep)
}

func TestMonthNavigationAndBackStep(t *testing.T) {
	ts := setupTestServer(t, Config{})
	base := "/api/v1/sessions/" + ts.startSession(t)

	snap := decode[sessionResponse](t, ts.do(t, http.MethodPost, base+"/month/previous", nil))
	assert.Equal(t, 2025, snap.Year)
	assert.Equal(t, 12, snap.Month)

	ts.do(t, http.MethodPost, base+"/month/next", nil)
	snap = decode[sessionResponse](t, ts.do(t, http.MethodPost, base+"/month/next", nil))
	assert.Equal(t, 2026, snap.Year)
	assert.Equal(t, 2, snap.Month)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, base+"/month/sideways", nil).Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/date", dateRequest{Date: "2026-02-02"}).Code)
	rec := ts.do(t, http.MethodPost, base+"/step", stepRequest{Step: model.StepDate})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[sessionResponse](t, rec)
	assert.Equal(t, model.StepDate, snap.CurrentStep)
	require.NotNil(t, snap.Booking.Date)
}

func TestSessionErrors(t *testing.T) {
	ts := setupTestServer(t, Config{})

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/v1/sessions/missing", nil).Code)

	id := ts.startSession(t)
	base := "/api/v1/sessions/" + id

	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPut, base, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, base+"/slots?date=tomorrow", nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, base+"/payment", checkout.Instrument{}).Code)

	ts.source.remove("p1")
	assert.Equal(t, http.StatusGone, ts.do(t, http.MethodGet, base, nil).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, 0, ts.sessions.Len())
	assert.Contains(t, ts.events, events.TypeSessionAbandoned)
}

func TestHandleExport(t *testing.T) {
	ts := setupTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/api/v1/book/key-1/calendar.xlsx?year=2026&month=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "p1-2026-1.xlsx")
	assert.NotZero(t, rec.Body.Len())

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/book/key-1/calendar.xlsx?month=13", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/book/nope/calendar.xlsx", nil).Code)
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t, Config{RequestsPerSecond: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/book/key-1", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/book/key-1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodGet, "/api/v1/book/key-1", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/book/key-1", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	ts := setupTestServer(t, Config{CORSOrigins: []string{"https://book.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/book/key-1", nil)
	req.Header.Set("Origin", "https://book.example.com")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
