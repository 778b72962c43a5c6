package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"guardslot/internal/availability"
	"guardslot/internal/booking"
	"guardslot/internal/catalog"
	"guardslot/internal/checkout"
	"guardslot/internal/events"
	"guardslot/internal/metrics"
	"guardslot/internal/model"
)

type sessionResponse struct {
	booking.Snapshot
	Provider ProviderSummary `json:"provider"`
}

type calendarResponse struct {
	Year   int                 `json:"year"`
	Month  int                 `json:"month"`
	Days   []model.CalendarDay `json:"days"`
	Cached bool                `json:"cached"`
}

type slotsResponse struct {
	Date  string           `json:"date"`
	Slots []model.TimeSlot `json:"slots"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type slotRequest struct {
	SlotID string `json:"slot_id"`
}

type stepRequest struct {
	Step model.StepID `json:"step"`
}

// sessionContext loads the session and its provider, writing the error response on failure.
func (s *HTTPServer) sessionContext(w http.ResponseWriter, r *http.Request) (*booking.Session, *model.Provider, bool) {
	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found or expired")
		return nil, nil, false
	}

	p, err := s.catalog.ProviderByID(r.Context(), session.ProviderID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusGone, "provider is no longer available")
			return nil, nil, false
		}
		s.logger.Error().Err(err).Str("session", session.ID).Msg("provider lookup failed")
		writeError(w, http.StatusInternalServerError, "provider lookup failed")
		return nil, nil, false
	}
	return session, p, true
}

func (s *HTTPServer) writeSession(w http.ResponseWriter, status int, session *booking.Session, p *model.Provider) {
	writeJSON(w, status, sessionResponse{Snapshot: session.Snapshot(), Provider: summarize(p)})
}

func (s *HTTPServer) parseDate(value string) (time.Time, bool) {
	d, err := time.ParseInLocation(availability.DateLayout, value, s.clock.Now().Location())
	return d, err == nil
}

// GET /api/v1/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_session")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}
	s.writeSession(w, http.StatusOK, session, p)
}

// DELETE /api/v1/sessions/{id}
func (s *HTTPServer) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("abandon_session")

	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found or expired")
		return
	}
	s.sessions.Delete(session.ID)
	metrics.SetSessions(s.sessions.Len())
	s.bus.Publish(events.Event{Type: events.TypeSessionAbandoned, SessionID: session.ID, ProviderID: session.ProviderID})
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/sessions/{id}/calendar
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	days, cached := session.Calendar(p, s.clock.Now())
	metrics.IncCalendarBuild(cached)
	year, month := session.Month()
	writeJSON(w, http.StatusOK, calendarResponse{Year: year, Month: int(month), Days: days, Cached: cached})
}

// GET /api/v1/sessions/{id}/slots?date=YYYY-MM-DD&available=true
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	_, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("date")
	date, valid := s.parseDate(raw)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots := availability.GenerateTimeSlotsForDate(date, p, s.clock.Now())
	if r.URL.Query().Get("available") == "true" {
		slots = availability.AvailableSlots(slots)
	}
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: raw, Slots: slots})
}

// POST /api/v1/sessions/{id}/date
func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("select_date")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	var req dateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, valid := s.parseDate(req.Date)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	// Only in-month, available cells are clickable.
	now := s.clock.Now()
	days, _ := session.Calendar(p, now)
	var cell *model.CalendarDay
	for i := range days {
		if availability.SameDate(days[i].Date, date) {
			cell = &days[i]
			break
		}
	}
	if cell == nil || !cell.IsCurrentMonth {
		writeError(w, http.StatusUnprocessableEntity, "date is not in the displayed month")
		return
	}
	if !cell.IsAvailable {
		writeError(w, http.StatusUnprocessableEntity, "date is not available")
		return
	}

	session.SelectDate(date, now)
	metrics.IncWizardTransition(string(model.StepTime))
	s.bus.Publish(events.Event{Type: events.TypeDateSelected, SessionID: session.ID, ProviderID: p.ID})
	s.writeSession(w, http.StatusOK, session, p)
}

// POST /api/v1/sessions/{id}/slot
func (s *HTTPServer) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("select_slot")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b := session.Booking()
	if b.Date == nil {
		writeError(w, http.StatusConflict, "select a date first")
		return
	}

	now := s.clock.Now()
	slots := availability.AvailableSlots(availability.GenerateTimeSlotsForDate(*b.Date, p, now))
	slot, found := availability.FindSlot(slots, req.SlotID)
	if !found {
		writeError(w, http.StatusUnprocessableEntity, "time slot is not available")
		return
	}

	session.SelectTimeSlot(slot, now)
	metrics.IncWizardTransition(string(model.StepDetails))
	_ = s.bus.PublishJSON(events.TypeSlotSelected, session.ID, p.ID, map[string]string{"slot_id": slot.ID})
	s.writeSession(w, http.StatusOK, session, p)
}

// POST /api/v1/sessions/{id}/month/{direction}
func (s *HTTPServer) handleMonth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("month")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	now := s.clock.Now()
	if mux.Vars(r)["direction"] == "next" {
		session.NextMonth(now)
	} else {
		session.PreviousMonth(now)
	}
	s.writeSession(w, http.StatusOK, session, p)
}

// POST /api/v1/sessions/{id}/step
func (s *HTTPServer) handleStep(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("step")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	var req stepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Step.Valid() {
		writeError(w, http.StatusBadRequest, "unknown step")
		return
	}

	if !session.Navigate(req.Step, s.clock.Now()) {
		writeError(w, http.StatusConflict, "step is not reachable from "+string(session.CurrentStep()))
		return
	}
	metrics.IncWizardTransition(string(req.Step))
	s.writeSession(w, http.StatusOK, session, p)
}

// POST /api/v1/sessions/{id}/details
func (s *HTTPServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("details")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	var req model.Customer
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.checkout.SubmitDetails(session, req); err != nil {
		s.writeCheckoutError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK, session, p)
}

// POST /api/v1/sessions/{id}/payment
func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment")

	session, p, ok := s.sessionContext(w, r)
	if !ok {
		return
	}

	var req checkout.Instrument
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := s.checkout.Pay(r.Context(), session, p, req.Normalized())
	if err != nil {
		s.writeCheckoutError(w, err)
		return
	}

	s.sessions.Delete(session.ID)
	metrics.SetSessions(s.sessions.Len())
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *HTTPServer) writeCheckoutError(w http.ResponseWriter, err error) {
	var fields checkout.FieldErrors
	switch {
	case errors.As(err, &fields):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
	case errors.Is(err, checkout.ErrWrongStep):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrSlotUnavailable), errors.Is(err, checkout.ErrSlotTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, "payment declined")
	default:
		s.logger.Error().Err(err).Msg("checkout failed")
		writeError(w, http.StatusBadGateway, "payment could not be processed")
	}
}
