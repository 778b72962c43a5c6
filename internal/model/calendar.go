package model

import "time"

// TimeSlot is a derived, bookable start time within a day.
type TimeSlot struct {
	ID        string    `json:"id"`   // "2026-01-05-9:30 AM"
	Time      string    `json:"time"` // "9:30 AM"
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
	Price     float64   `json:"price"`
	Duration  int       `json:"duration"` // minutes
}

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date           time.Time  `json:"date"`
	IsCurrentMonth bool       `json:"is_current_month"`
	IsToday        bool       `json:"is_today"`
	IsSelected     bool       `json:"is_selected"`
	IsAvailable    bool       `json:"is_available"`
	Slots          []TimeSlot `json:"slots"`
	DayOfWeek      int        `json:"day_of_week"`
}

// SelectedBooking is the wizard's in-progress selection.
type SelectedBooking struct {
	Date       *time.Time `json:"date"`
	TimeSlot   *TimeSlot  `json:"time_slot"`
	Duration   int        `json:"duration"`
	TotalPrice float64    `json:"total_price"`
}

// StepID names a wizard step.
type StepID string

const (
	StepDate    StepID = "date"
	StepTime    StepID = "time"
	StepDetails StepID = "details"
	StepPayment StepID = "payment"
)

// StepOrder is the fixed wizard order.
var StepOrder = []StepID{StepDate, StepTime, StepDetails, StepPayment}

// StepTitles are shown in the progress header.
var StepTitles = map[StepID]string{
	StepDate:    "Select Date",
	StepTime:    "Choose Time",
	StepDetails: "Your Details",
	StepPayment: "Payment",
}

// Valid reports whether id is one of the four wizard steps.
func (id StepID) Valid() bool {
	_, ok := StepTitles[id]
	return ok
}

// Index returns the position of id in StepOrder, or -1.
func (id StepID) Index() int {
	for i, s := range StepOrder {
		if s == id {
			return i
		}
	}
	return -1
}

// BookingStep is the presentation of one wizard step.
type BookingStep struct {
	ID        StepID `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Current   bool   `json:"current"`
}

// Customer holds contact details collected in the details step.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes,omitempty"`
}
