// Package booking implements the step-by-step booking wizard state.
package booking

import (
	"sync"
	"time"

	"guardslot/internal/availability"
	"guardslot/internal/model"
)

// Session is one customer's wizard state for a single provider.
// All transitions go through its methods; it is safe for concurrent use.
type Session struct {
	ID         string
	ProviderID string
	StartedAt  time.Time
	UpdatedAt  time.Time

	booking  model.SelectedBooking
	step     model.StepID
	year     int
	month    time.Month
	customer *model.Customer
	paying   bool
	paid     bool

	memo calendarMemo
	mu   sync.Mutex
}

type calendarKey struct {
	providerID string
	version    int64
	year       int
	month      time.Month
	selected   string
	minute     int64
}

type calendarMemo struct {
	valid bool
	key   calendarKey
	days  []model.CalendarDay
}

// NewSession starts a wizard at the date step, showing the month of now.
func NewSession(id, providerID string, now time.Time) *Session {
	return &Session{
		ID:         id,
		ProviderID: providerID,
		StartedAt:  now,
		UpdatedAt:  now,
		booking: model.SelectedBooking{
			Duration: availability.DefaultSlotDuration,
		},
		step:  model.StepDate,
		year:  now.Year(),
		month: now.Month(),
	}
}

func (s *Session) touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// SelectDate picks a day, clears any chosen slot and moves to the time step.
// Duration and price keep their previous values until a new slot is chosen.
func (s *Session) SelectDate(date time.Time, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := availability.StartOfDay(date)
	s.booking.Date = &d
	s.booking.TimeSlot = nil
	s.step = model.StepTime
	s.touch(now)
}

// SelectTimeSlot records the slot and its price and moves to the details step.
// Availability is not re-checked here; callers offer only available slots.
func (s *Session) SelectTimeSlot(slot model.TimeSlot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.booking.TimeSlot = &slot
	s.booking.Duration = slot.Duration
	if s.booking.Duration == 0 {
		s.booking.Duration = availability.DefaultSlotDuration
	}
	s.booking.TotalPrice = slot.Price
	s.step = model.StepDetails
	s.touch(now)
}

// GoToStep jumps unconditionally. See CanNavigate for what a UI should offer.
func (s *Session) GoToStep(step model.StepID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
	s.touch(now)
}

// NextMonth advances the visible month. The selection is untouched.
func (s *Session) NextMonth(now time.Time) {
	s.shiftMonth(1, now)
}

// PreviousMonth moves the visible month back. The selection is untouched.
func (s *Session) PreviousMonth(now time.Time) {
	s.shiftMonth(-1, now)
}

func (s *Session) shiftMonth(delta int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.year, s.month = availability.AddMonths(s.year, s.month, delta)
	s.touch(now)
}

// AttachCustomer stores contact details and moves to the payment step.
func (s *Session) AttachCustomer(c model.Customer, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = &c
	s.step = model.StepPayment
	s.touch(now)
}

// CurrentStep returns the step cursor.
func (s *Session) CurrentStep() model.StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// BeginPayment claims the payment step for one caller. It reports false when the
// wizard is not at the payment step, a payment is already running or the
// session has already been paid.
func (s *Session) BeginPayment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != model.StepPayment || s.paying || s.paid {
		return false
	}
	s.paying = true
	return true
}

// EndPayment releases the claim taken by BeginPayment.
func (s *Session) EndPayment(paid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paying = false
	if paid {
		s.paid = true
	}
}

// Month returns the visible month.
func (s *Session) Month() (int, time.Month) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.year, s.month
}

// Booking returns a copy of the current selection.
func (s *Session) Booking() model.SelectedBooking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyBooking(s.booking)
}

// Customer returns the attached contact details, if any.
func (s *Session) Customer() *model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customer == nil {
		return nil
	}
	c := *s.customer
	return &c
}

// Steps derives the four step flags. Only date and time can report completed.
func (s *Session) Steps() []model.BookingStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsLocked()
}

func (s *Session) stepsLocked() []model.BookingStep {
	steps := make([]model.BookingStep, 0, len(model.StepOrder))
	for _, id := range model.StepOrder {
		completed := false
		switch id {
		case model.StepDate:
			completed = s.booking.Date != nil
		case model.StepTime:
			completed = s.booking.TimeSlot != nil
		}
		steps = append(steps, model.BookingStep{
			ID:        id,
			Title:     model.StepTitles[id],
			Completed: completed,
			Current:   s.step == id,
		})
	}
	return steps
}

// Progress is the percentage shown in the progress bar.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.step.Index()
	if idx < 0 {
		return 0
	}
	return idx * 25
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.UpdatedAt) > timeout
}

// Calendar returns the grid for the visible month. The result is memoized on
// provider identity and version, month, selected date and now at minute precision,
// and is shared between callers: do not modify it.
func (s *Session) Calendar(provider *model.Provider, now time.Time) (days []model.CalendarDay, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := calendarKey{
		year:   s.year,
		month:  s.month,
		minute: now.Truncate(time.Minute).Unix(),
	}
	if provider != nil {
		key.providerID = provider.ID
		key.version = provider.Version
	}
	if s.booking.Date != nil {
		key.selected = s.booking.Date.Format(availability.DateLayout)
	}

	if s.memo.valid && s.memo.key == key {
		return s.memo.days, true
	}

	days = availability.BuildCalendarMonth(s.year, s.month, provider, s.booking.Date, now)
	s.memo = calendarMemo{valid: true, key: key, days: days}
	return days, false
}

// Snapshot is a point-in-time view of the session for presentation.
type Snapshot struct {
	ID          string                `json:"id"`
	ProviderID  string                `json:"provider_id"`
	CurrentStep model.StepID          `json:"current_step"`
	Steps       []model.BookingStep   `json:"steps"`
	Progress    int                   `json:"progress"`
	Booking     model.SelectedBooking `json:"booking"`
	Customer    *model.Customer       `json:"customer,omitempty"`
	Year        int                   `json:"year"`
	Month       int                   `json:"month"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.ID,
		ProviderID:  s.ProviderID,
		CurrentStep: s.step,
		Steps:       s.stepsLocked(),
		Booking:     copyBooking(s.booking),
		Year:        s.year,
		Month:       int(s.month),
		UpdatedAt:   s.UpdatedAt,
	}
	if idx := s.step.Index(); idx > 0 {
		snap.Progress = idx * 25
	}
	if s.customer != nil {
		c := *s.customer
		snap.Customer = &c
	}
	return snap
}

func copyBooking(b model.SelectedBooking) model.SelectedBooking {
	out := b
	if b.Date != nil {
		d := *b.Date
		out.Date = &d
	}
	if b.TimeSlot != nil {
		ts := *b.TimeSlot
		out.TimeSlot = &ts
	}
	return out
}
