package booking

import (
	"time"

	"guardslot/internal/model"
)

// backTransitions lists the "back" moves a UI may offer from each step.
var backTransitions = map[model.StepID][]model.StepID{
	model.StepDate:    {},
	model.StepTime:    {model.StepDate},
	model.StepDetails: {model.StepTime},
	model.StepPayment: {model.StepDetails},
}

// CanNavigate reports whether an explicit jump from -> to keeps step prerequisites intact.
// Forward jumps are allowed only when the data the target step needs already exists.
func CanNavigate(from, to model.StepID, b model.SelectedBooking, hasCustomer bool) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}

	for _, s := range backTransitions[from] {
		if s == to {
			return true
		}
	}

	if to.Index() != from.Index()+1 {
		return false
	}
	switch to {
	case model.StepTime:
		return b.Date != nil
	case model.StepDetails:
		return b.Date != nil && b.TimeSlot != nil
	case model.StepPayment:
		return b.Date != nil && b.TimeSlot != nil && hasCustomer
	}
	return false
}

// Navigate moves to another step only when CanNavigate allows it.
func (s *Session) Navigate(to model.StepID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanNavigate(s.step, to, s.booking, s.customer != nil) {
		return false
	}
	s.step = to
	s.touch(now)
	return true
}
