// Package availability derives bookable days and time slots from a provider's weekly schedule.
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"guardslot/internal/model"
)

const (
	// SlotStep is the distance between consecutive slot starts.
	SlotStep = 30 * time.Minute

	// DefaultSlotDuration applies when the provider has no service configured.
	DefaultSlotDuration = 60

	// TimeLabelLayout renders slot times as "9:30 AM".
	TimeLabelLayout = "3:04 PM"

	// DateLayout is the ISO calendar date used in slot ids and the API.
	DateLayout = "2006-01-02"
)

// IsDateAvailable reports whether a calendar day can be booked.
// Past days are never available. A nil provider is treated as "schedule not loaded yet"
// and every other day is available.
func IsDateAvailable(date time.Time, provider *model.Provider, now time.Time) bool {
	day := StartOfDay(date)
	today := StartOfDay(now.In(date.Location()))
	if day.Before(today) {
		return false
	}
	if provider == nil {
		return true
	}
	return provider.RuleFor(int(date.Weekday())) != nil
}

// GenerateTimeSlotsForDate returns every 30-minute slot of the day's working window in start order.
// Slots inside a break or at/before now are kept with Available=false.
// Malformed rule times produce an empty list.
func GenerateTimeSlotsForDate(date time.Time, provider *model.Provider, now time.Time) []model.TimeSlot {
	if provider == nil || !IsDateAvailable(date, provider, now) {
		return nil
	}

	rule := provider.RuleFor(int(date.Weekday()))
	if rule == nil {
		return nil
	}

	start, err := parseTimeOnDate(date, rule.StartTime)
	if err != nil {
		return nil
	}
	end, err := parseTimeOnDate(date, rule.EndTime)
	if err != nil {
		return nil
	}

	breaks := parseBreaks(date, rule.BreakTimes)

	price, duration := 0.0, DefaultSlotDuration
	if svc := provider.PrimaryService(); svc != nil {
		price = svc.Price
		if svc.Duration > 0 {
			duration = svc.Duration
		}
	}

	isoDate := date.Format(DateLayout)
	var slots []model.TimeSlot
	for cursor := start; cursor.Before(end); cursor = cursor.Add(SlotStep) {
		label := cursor.Format(TimeLabelLayout)
		isPast := !cursor.After(now)

		slots = append(slots, model.TimeSlot{
			ID:        isoDate + "-" + label,
			Time:      label,
			Start:     cursor,
			Available: !inBreak(cursor, breaks) && !isPast,
			Price:     price,
			Duration:  duration,
		})
	}

	return slots
}

// AvailableSlots returns only the slots that can be selected.
func AvailableSlots(slots []model.TimeSlot) []model.TimeSlot {
	var available []model.TimeSlot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FindSlot looks a slot up by id.
func FindSlot(slots []model.TimeSlot, id string) (model.TimeSlot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return model.TimeSlot{}, false
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate compares calendar dates, ignoring time of day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type interval struct {
	start time.Time
	end   time.Time
}

func parseBreaks(date time.Time, breaks []model.BreakTime) []interval {
	out := make([]interval, 0, len(breaks))
	for _, b := range breaks {
		bs, err := parseTimeOnDate(date, b.Start)
		if err != nil {
			continue
		}
		be, err := parseTimeOnDate(date, b.End)
		if err != nil {
			continue
		}
		out = append(out, interval{start: bs, end: be})
	}
	return out
}

// inBreak uses half-open intervals: a slot starting exactly at a break end is free.
func inBreak(t time.Time, breaks []interval) bool {
	for _, b := range breaks {
		if !t.Before(b.start) && t.Before(b.end) {
			return true
		}
	}
	return false
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	hour, minute, err := ParseClock(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// ParseClock splits an "HH:MM" wall-clock string.
func ParseClock(timeStr string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %q", timeStr)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("time out of range: %q", timeStr)
	}

	return hour, minute, nil
}
