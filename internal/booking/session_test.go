package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardslot/internal/availability"
	"guardslot/internal/model"
)

func testProvider() *model.Provider {
	return &model.Provider{
		ID:       "p1",
		Services: []model.Service{{ID: "s1", Name: "Cut", Duration: 45, Price: 85}},
		Availability: []model.AvailabilityRule{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", BreakTimes: []model.BreakTime{{Start: "12:00", End: "13:00"}}},
			{DayOfWeek: 3, StartTime: "09:00", EndTime: "12:00"},
		},
		Version: 1,
	}
}

var t0 = time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)

func TestNewSession(t *testing.T) {
	s := NewSession("id", "p1", t0)

	assert.Equal(t, model.StepDate, s.CurrentStep())
	b := s.Booking()
	assert.Nil(t, b.Date)
	assert.Nil(t, b.TimeSlot)
	assert.Equal(t, 60, b.Duration)
	assert.Equal(t, 0.0, b.TotalPrice)

	year, month := s.Month()
	assert.Equal(t, 2026, year)
	assert.Equal(t, time.January, month)
	assert.Equal(t, 0, s.Progress())
}

func TestSelectDateResetsSlot(t *testing.T) {
	p := testProvider()
	s := NewSession("id", p.ID, t0)

	monday := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	s.SelectDate(monday, t0)
	assert.Equal(t, model.StepTime, s.CurrentStep())

	slots := availability.GenerateTimeSlotsForDate(monday, p, t0)
	require.NotEmpty(t, slots)
	s.SelectTimeSlot(slots[0], t0)

	b := s.Booking()
	require.NotNil(t, b.TimeSlot)
	assert.Equal(t, slots[0].ID, b.TimeSlot.ID)
	assert.Equal(t, 45, b.Duration)
	assert.Equal(t, 85.0, b.TotalPrice)
	assert.Equal(t, model.StepDetails, s.CurrentStep())

	wednesday := time.Date(2026, time.January, 7, 15, 30, 0, 0, time.UTC)
	s.SelectDate(wednesday, t0)

	b = s.Booking()
	assert.Nil(t, b.TimeSlot)
	require.NotNil(t, b.Date)
	assert.Equal(t, time.Date(2026, time.January, 7, 0, 0, 0, 0, time.UTC), *b.Date)
	assert.Equal(t, 45, b.Duration, "duration is kept until a new slot is chosen")
	assert.Equal(t, 85.0, b.TotalPrice)
	assert.Equal(t, model.StepTime, s.CurrentStep())
}

func TestSelectTimeSlotDefaultsDuration(t *testing.T) {
	s := NewSession("id", "p1", t0)
	s.SelectTimeSlot(model.TimeSlot{ID: "x", Price: 10}, t0)

	b := s.Booking()
	assert.Equal(t, 60, b.Duration)
	assert.Equal(t, 10.0, b.TotalPrice)
}

func TestSteps(t *testing.T) {
	s := NewSession("id", "p1", t0)

	steps := s.Steps()
	require.Len(t, steps, 4)
	assert.Equal(t, "Select Date", steps[0].Title)
	assert.Equal(t, "Payment", steps[3].Title)

	current := 0
	for _, st := range steps {
		if st.Current {
			current++
		}
		assert.False(t, st.Completed)
	}
	assert.Equal(t, 1, current)

	s.SelectDate(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), t0)
	s.SelectTimeSlot(model.TimeSlot{ID: "slot"}, t0)
	s.AttachCustomer(model.Customer{FirstName: "A"}, t0)

	steps = s.Steps()
	assert.True(t, steps[0].Completed)
	assert.True(t, steps[1].Completed)
	assert.False(t, steps[2].Completed)
	assert.False(t, steps[3].Completed)
	assert.True(t, steps[3].Current)
	assert.Equal(t, 75, s.Progress())
}

func TestGoToStepIsUnconditional(t *testing.T) {
	s := NewSession("id", "p1", t0)
	s.GoToStep(model.StepPayment, t0)
	assert.Equal(t, model.StepPayment, s.CurrentStep())
	assert.Nil(t, s.Booking().Date)
}

func TestMonthNavigation(t *testing.T) {
	s := NewSession("id", "p1", t0)
	selected := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	s.SelectDate(selected, t0)

	for i := 0; i < 12; i++ {
		s.NextMonth(t0)
	}
	year, month := s.Month()
	assert.Equal(t, 2027, year)
	assert.Equal(t, time.January, month)

	days, _ := s.Calendar(testProvider(), t0)
	assert.Len(t, days, availability.GridSize)

	s.PreviousMonth(t0)
	year, month = s.Month()
	assert.Equal(t, 2026, year)
	assert.Equal(t, time.December, month)

	require.NotNil(t, s.Booking().Date)
	assert.Equal(t, selected, *s.Booking().Date)
	assert.Equal(t, model.StepTime, s.CurrentStep())
}

func TestCalendarMemo(t *testing.T) {
	p := testProvider()
	s := NewSession("id", p.ID, t0)

	first, cached := s.Calendar(p, t0)
	assert.False(t, cached)

	_, cached = s.Calendar(p, t0.Add(20*time.Second))
	assert.True(t, cached, "same minute")

	s.SelectTimeSlot(model.TimeSlot{ID: "any"}, t0)
	_, cached = s.Calendar(p, t0)
	assert.True(t, cached, "slot selection does not affect the grid")

	s.SelectDate(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), t0)
	days, cached := s.Calendar(p, t0)
	assert.False(t, cached, "selected date changed")
	assert.True(t, days[4+4].IsSelected)
	assert.False(t, first[4+4].IsSelected)

	_, cached = s.Calendar(p, t0.Add(time.Minute))
	assert.False(t, cached, "clock moved")

	bumped := *p
	bumped.Version = 2
	_, cached = s.Calendar(&bumped, t0.Add(time.Minute))
	assert.False(t, cached, "provider version changed")

	s.NextMonth(t0)
	_, cached = s.Calendar(&bumped, t0.Add(time.Minute))
	assert.False(t, cached, "month changed")
}

func TestSnapshot(t *testing.T) {
	s := NewSession("sid", "p1", t0)
	s.SelectDate(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), t0)

	snap := s.Snapshot()
	assert.Equal(t, "sid", snap.ID)
	assert.Equal(t, model.StepTime, snap.CurrentStep)
	assert.Equal(t, 25, snap.Progress)
	assert.Equal(t, 1, snap.Month)

	// Mutating the snapshot must not leak into the session.
	*snap.Booking.Date = time.Time{}
	assert.False(t, s.Booking().Date.IsZero())
}

func TestBeginPayment(t *testing.T) {
	s := NewSession("id", "p1", t0)
	assert.False(t, s.BeginPayment(), "not at the payment step")

	s.AttachCustomer(model.Customer{FirstName: "Ada"}, t0)
	require.True(t, s.BeginPayment())
	assert.False(t, s.BeginPayment(), "payment already running")

	s.EndPayment(false)
	require.True(t, s.BeginPayment(), "retry after a failed payment")
	s.EndPayment(true)
	assert.False(t, s.BeginPayment(), "already paid")
}
