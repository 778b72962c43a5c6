package availability

import (
	"time"

	"guardslot/internal/model"
)

// GridSize is the fixed 6x7 month grid.
const GridSize = 42

// BuildCalendarMonth lays out a Sunday-first month grid padded with adjacent-month days.
// Grid dates are created in now's location. Month values outside 1-12 are normalized.
func BuildCalendarMonth(year int, month time.Month, provider *model.Provider, selected *time.Time, now time.Time) []model.CalendarDay {
	loc := now.Location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	year, month = first.Year(), first.Month()
	offset := int(first.Weekday())

	days := make([]model.CalendarDay, 0, GridSize)

	for i := offset; i > 0; i-- {
		days = append(days, paddingDay(first.AddDate(0, 0, -i)))
	}

	for day := 1; day <= DaysIn(month, year); day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, loc)
		slots := GenerateTimeSlotsForDate(date, provider, now)
		if slots == nil {
			slots = []model.TimeSlot{}
		}

		days = append(days, model.CalendarDay{
			Date:           date,
			IsCurrentMonth: true,
			IsToday:        SameDate(date, now),
			IsSelected:     selected != nil && SameDate(selected.In(loc), date),
			IsAvailable:    IsDateAvailable(date, provider, now),
			Slots:          slots,
			DayOfWeek:      int(date.Weekday()),
		})
	}

	next := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	for i := 0; len(days) < GridSize; i++ {
		days = append(days, paddingDay(next.AddDate(0, 0, i)))
	}

	return days
}

func paddingDay(date time.Time) model.CalendarDay {
	return model.CalendarDay{
		Date:      date,
		Slots:     []model.TimeSlot{},
		DayOfWeek: int(date.Weekday()),
	}
}

// DaysIn returns the number of days in a month.
func DaysIn(m time.Month, year int) int {
	switch m {
	case time.February:
		if (year%4 == 0 && year%100 != 0) || year%400 == 0 {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// AddMonths moves a (year, month) cursor, wrapping across years.
func AddMonths(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}
