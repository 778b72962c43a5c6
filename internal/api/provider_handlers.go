package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"guardslot/internal/catalog"
	"guardslot/internal/events"
	"guardslot/internal/export"
	"guardslot/internal/metrics"
	"guardslot/internal/model"
)

// ProviderSummary is the public header of a booking page.
type ProviderSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Business string         `json:"business"`
	Avatar   string         `json:"avatar,omitempty"`
	Timezone string         `json:"timezone"`
	Service  *model.Service `json:"service,omitempty"`
}

func summarize(p *model.Provider) ProviderSummary {
	return ProviderSummary{
		ID:       p.ID,
		Name:     p.Name,
		Business: p.Business,
		Avatar:   p.Avatar,
		Timezone: p.Timezone,
		Service:  p.PrimaryService(),
	}
}

// providerByKey writes the error response itself and returns nil on failure.
func (s *HTTPServer) providerByKey(w http.ResponseWriter, r *http.Request) *model.Provider {
	p, err := s.catalog.ProviderByAPIKey(r.Context(), mux.Vars(r)["apiKey"])
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "provider not found")
			return nil
		}
		s.logger.Error().Err(err).Msg("provider lookup failed")
		writeError(w, http.StatusInternalServerError, "provider lookup failed")
		return nil
	}
	return p
}

// handleProvider returns the provider header for a booking page.
// GET /api/v1/book/{apiKey}
func (s *HTTPServer) handleProvider(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("provider")

	p := s.providerByKey(w, r)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, summarize(p))
}

// handleStartSession opens a wizard session for the provider.
// POST /api/v1/book/{apiKey}/sessions
func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("start_session")

	p := s.providerByKey(w, r)
	if p == nil {
		return
	}

	session := s.sessions.Create(p.ID)
	metrics.SetSessions(s.sessions.Len())
	s.bus.Publish(events.Event{Type: events.TypeSessionStarted, SessionID: session.ID, ProviderID: p.ID})

	writeJSON(w, http.StatusCreated, sessionResponse{Snapshot: session.Snapshot(), Provider: summarize(p)})
}

// handleExport streams the month workbook.
// GET /api/v1/book/{apiKey}/calendar.xlsx?year=2026&month=1
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	p := s.providerByKey(w, r)
	if p == nil {
		return
	}

	now := s.clock.Now()
	year, month := now.Year(), now.Month()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "invalid month; expected 1-12")
			return
		}
		month = time.Month(m)
	}

	var buf bytes.Buffer
	if err := export.MonthWorkbook(&buf, p, year, month, now); err != nil {
		s.logger.Error().Err(err).Str("provider", p.ID).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+p.ID+`-`+strconv.Itoa(year)+`-`+strconv.Itoa(int(month))+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
