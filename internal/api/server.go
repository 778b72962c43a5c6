// Package api exposes the booking wizard over JSON HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"guardslot/internal/availability"
	"guardslot/internal/booking"
	"guardslot/internal/catalog"
	"guardslot/internal/checkout"
	"guardslot/internal/events"
)

// Config holds HTTP surface settings.
type Config struct {
	Port              int
	CORSOrigins       []string
	RequestsPerSecond float64
	Burst             int
}

// HTTPServer serves the public booking endpoints.
type HTTPServer struct {
	catalog  catalog.Source
	sessions *booking.SessionStore
	checkout *checkout.Service
	bus      *events.Bus
	clock    availability.Clock
	logger   *zerolog.Logger
	limiter  *clientLimiter

	server *http.Server
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(
	cfg Config,
	source catalog.Source,
	sessions *booking.SessionStore,
	checkoutSvc *checkout.Service,
	bus *events.Bus,
	clock availability.Clock,
	logger *zerolog.Logger,
) *HTTPServer {
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &HTTPServer{
		catalog:  source,
		sessions: sessions,
		checkout: checkoutSvc,
		bus:      bus,
		clock:    clock,
		logger:   logger,
	}

	s.limiter = newClientLimiter(cfg.RequestsPerSecond, cfg.Burst)

	var handler http.Handler = s.routes()
	handler = s.limiter.middleware(handler)
	handler = requestLogger(logger)(handler)
	if len(cfg.CORSOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handler)
	}
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}))(handler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// EvictIdleClients forgets rate limit state of clients idle for maxIdle.
func (s *HTTPServer) EvictIdleClients(maxIdle time.Duration) int {
	return s.limiter.evictIdle(maxIdle)
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/book/{apiKey}", s.handleProvider).Methods(http.MethodGet)
	v1.HandleFunc("/book/{apiKey}/sessions", s.handleStartSession).Methods(http.MethodPost)
	v1.HandleFunc("/book/{apiKey}/calendar.xlsx", s.handleExport).Methods(http.MethodGet)

	v1.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", s.handleAbandonSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/calendar", s.handleCalendar).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/slots", s.handleSlots).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/date", s.handleSelectDate).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/slot", s.handleSelectSlot).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/month/{direction:next|previous}", s.handleMonth).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/step", s.handleStep).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/details", s.handleDetails).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/payment", s.handlePayment).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. http.ErrServerClosed is not reported.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Booking API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
