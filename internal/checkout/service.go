// Package checkout runs the details and payment steps of the booking wizard.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guardslot/internal/availability"
	"guardslot/internal/booking"
	"guardslot/internal/events"
	"guardslot/internal/hold"
	"guardslot/internal/metrics"
	"guardslot/internal/model"
)

var (
	ErrWrongStep       = errors.New("wizard is not at the expected step")
	ErrSlotUnavailable = errors.New("selected slot is no longer available")
	ErrSlotTaken       = errors.New("selected slot is held by another booking")
)

// Receipt is returned once payment is authorized.
type Receipt struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ProviderID  string         `json:"provider_id"`
	ServiceName string         `json:"service_name,omitempty"`
	Date        string         `json:"date"`
	SlotID      string         `json:"slot_id"`
	Time        string         `json:"time"`
	Start       time.Time      `json:"start"`
	Duration    int            `json:"duration"`
	Amount      float64        `json:"amount"`
	CardLast4   string         `json:"card_last4"`
	PaymentRef  string         `json:"payment_ref"`
	Customer    model.Customer `json:"customer"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Service provides the wizard's confirmation steps.
type Service struct {
	holder   hold.SlotHolder
	payments PaymentCollaborator
	bus      *events.Bus
	clock    availability.Clock
	holdTTL  time.Duration
	logger   *zerolog.Logger
}

// NewService creates a checkout service. bus and logger may be nil.
func NewService(
	holder hold.SlotHolder,
	payments PaymentCollaborator,
	bus *events.Bus,
	clock availability.Clock,
	holdTTL time.Duration,
	logger *zerolog.Logger,
) *Service {
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		holder:   holder,
		payments: payments,
		bus:      bus,
		clock:    clock,
		holdTTL:  holdTTL,
		logger:   logger,
	}
}

// SubmitDetails validates the customer form and advances to payment.
func (s *Service) SubmitDetails(session *booking.Session, customer model.Customer) error {
	if session.CurrentStep() != model.StepDetails {
		return ErrWrongStep
	}
	b := session.Booking()
	if b.Date == nil || b.TimeSlot == nil {
		return ErrWrongStep
	}
	if err := ValidateCustomer(customer); err != nil {
		return err
	}

	session.AttachCustomer(customer, s.clock.Now())
	metrics.IncWizardTransition(string(model.StepPayment))
	s.bus.Publish(events.Event{Type: events.TypeDetailsSubmitted, SessionID: session.ID, ProviderID: session.ProviderID})
	return nil
}

// Pay re-checks the chosen slot, holds it and authorizes the payment.
// On a slot conflict the wizard is sent back to the time step.
// Only one payment runs per session; concurrent or repeated calls get ErrWrongStep.
func (s *Service) Pay(ctx context.Context, session *booking.Session, provider *model.Provider, inst Instrument) (receipt *Receipt, err error) {
	if !session.BeginPayment() {
		return nil, ErrWrongStep
	}
	defer func() { session.EndPayment(err == nil) }()

	b := session.Booking()
	customer := session.Customer()
	if b.Date == nil || b.TimeSlot == nil || customer == nil {
		return nil, ErrWrongStep
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	log := s.logger.With().Str("session", session.ID).Str("slot", b.TimeSlot.ID).Logger()

	slot, ok := availability.FindSlot(availability.GenerateTimeSlotsForDate(*b.Date, provider, now), b.TimeSlot.ID)
	if !ok || !slot.Available {
		s.conflict(session, now, "unavailable")
		log.Info().Msg("slot no longer available at confirmation")
		return nil, ErrSlotUnavailable
	}

	date := b.Date.Format(availability.DateLayout)
	key := hold.Key(session.ProviderID, date, slot.ID)
	held, err := s.holder.Hold(ctx, key, session.ID, s.holdTTL)
	if err != nil {
		metrics.IncCheckout("error")
		return nil, fmt.Errorf("hold slot: %w", err)
	}
	if !held {
		s.conflict(session, now, "taken")
		log.Info().Msg("slot held by another session")
		return nil, ErrSlotTaken
	}

	ref, err := s.payments.Authorize(ctx, PaymentRequest{
		SessionID:  session.ID,
		ProviderID: session.ProviderID,
		Amount:     b.TotalPrice,
		Instrument: inst,
	})
	if err != nil {
		if relErr := s.holder.Release(context.WithoutCancel(ctx), key, session.ID); relErr != nil {
			log.Error().Err(relErr).Msg("release hold after failed payment")
		}
		metrics.IncCheckout("payment_failed")
		_ = s.bus.PublishJSON(events.TypePaymentFailed, session.ID, session.ProviderID, map[string]string{"error": err.Error()})
		log.Warn().Err(err).Msg("payment failed")
		return nil, fmt.Errorf("authorize payment: %w", err)
	}

	receipt = &Receipt{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		ProviderID:  session.ProviderID,
		Date:        date,
		SlotID:      slot.ID,
		Time:        slot.Time,
		Start:       slot.Start,
		Duration:    b.Duration,
		Amount:      b.TotalPrice,
		CardLast4:   inst.Last4(),
		PaymentRef:  ref,
		Customer:    *customer,
		CompletedAt: s.clock.Now(),
	}
	if svc := provider.PrimaryService(); svc != nil {
		receipt.ServiceName = svc.Name
	}

	metrics.IncCheckout("completed")
	if err := s.bus.PublishJSON(events.TypeBookingCompleted, session.ID, session.ProviderID, receipt); err != nil {
		log.Error().Err(err).Msg("publish booking completed")
	}
	log.Info().Str("receipt", receipt.ID).Msg("booking completed")
	return receipt, nil
}

func (s *Service) conflict(session *booking.Session, now time.Time, outcome string) {
	session.GoToStep(model.StepTime, now)
	metrics.IncCheckout(outcome)
	metrics.IncWizardTransition(string(model.StepTime))
	s.bus.Publish(events.Event{Type: events.TypeSlotConflict, SessionID: session.ID, ProviderID: session.ProviderID})
}
