package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"guardslot/internal/model"
)

func TestMonthWorkbook(t *testing.T) {
	provider := &model.Provider{
		ID:       "p1",
		Services: []model.Service{{ID: "s1", Name: "Consultation", Duration: 45, Price: 85}},
		Availability: []model.AvailabilityRule{
			{DayOfWeek: 3, StartTime: "09:00", EndTime: "10:00"},
		},
	}
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, MonthWorkbook(&buf, provider, 2026, time.January, now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{CalendarSheet, SlotsSheet}, f.GetSheetList())

	calendar, err := f.GetRows(CalendarSheet)
	require.NoError(t, err)
	require.Len(t, calendar, 43)
	assert.Equal(t, []string{"Date", "Weekday", "In month", "Available", "Open slots"}, calendar[0])
	// January 2026 starts on Thursday: four padding cells first.
	assert.Equal(t, []string{"2025-12-28", "Sunday", "FALSE", "FALSE", "0"}, calendar[1])
	// Wednesday 2026-01-07 is the first working day.
	assert.Equal(t, []string{"2026-01-07", "Wednesday", "TRUE", "TRUE", "2"}, calendar[11])

	slots, err := f.GetRows(SlotsSheet)
	require.NoError(t, err)
	// Four Wednesdays (7, 14, 21, 28) with two slots each.
	require.Len(t, slots, 1+8)
	assert.Equal(t, []string{"2026-01-07", "9:00 AM", "TRUE", "85", "45"}, slots[1])
	assert.Equal(t, []string{"2026-01-07", "9:30 AM", "TRUE", "85", "45"}, slots[2])
}
