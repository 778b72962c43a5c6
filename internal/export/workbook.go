// Package export writes a provider's month as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"guardslot/internal/availability"
	"guardslot/internal/model"
)

const (
	CalendarSheet = "Calendar"
	SlotsSheet    = "Slots"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	headerStyle  int
}

func newSheetWriter() *sheetWriter {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		style = 0
	}
	return &sheetWriter{file: f, headerStyle: style}
}

func (w *sheetWriter) addSheet(name string, columns ...string) error {
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.currentSheet = name
	w.currentRow = 1

	if err := w.writeRow(toAny(columns)...); err != nil {
		return err
	}
	if w.headerStyle != 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(name, "A1", end, w.headerStyle)
	}
	return nil
}

func (w *sheetWriter) writeRow(values ...any) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// MonthWorkbook writes the 42-cell grid and every in-month slot for the provider.
func MonthWorkbook(out io.Writer, provider *model.Provider, year int, month time.Month, now time.Time) error {
	days := availability.BuildCalendarMonth(year, month, provider, nil, now)

	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(CalendarSheet, "Date", "Weekday", "In month", "Available", "Open slots"); err != nil {
		return err
	}
	for _, d := range days {
		open := len(availability.AvailableSlots(d.Slots))
		if err := w.writeRow(
			d.Date.Format(availability.DateLayout),
			d.Date.Weekday().String(),
			d.IsCurrentMonth,
			d.IsAvailable,
			open,
		); err != nil {
			return fmt.Errorf("write calendar row: %w", err)
		}
	}

	if err := w.addSheet(SlotsSheet, "Date", "Time", "Available", "Price", "Duration"); err != nil {
		return err
	}
	for _, d := range days {
		if !d.IsCurrentMonth {
			continue
		}
		for _, s := range d.Slots {
			if err := w.writeRow(d.Date.Format(availability.DateLayout), s.Time, s.Available, s.Price, s.Duration); err != nil {
				return fmt.Errorf("write slot row: %w", err)
			}
		}
	}

	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
