package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"seatwarden/internal/models"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	calendarSheet   = "Calendar"
	departuresSheet = "Departures"
)

// ExportCalendar writes the calendar rollup and per-departure breakdown as xlsx.
func (s *AvailabilityService) ExportCalendar(ctx context.Context, w io.Writer, from, to time.Time, resourceID string) (err error) {
	ctx, span := startSpan(ctx, "availability.export_calendar", attribute.String("resource_id", resourceID))
	defer func() { endSpan(span, err) }()

	days, details, err := s.calendar(ctx, from, to, resourceID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", calendarSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(departuresSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	fullStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	calendarHeader := []interface{}{"Date", "Departures", "Capacity", "Held", "Blocked", "Confirmed", "Remaining"}
	if err := writeRow(f, calendarSheet, 1, calendarHeader, headerStyle); err != nil {
		return err
	}
	for i, d := range days {
		row := []interface{}{d.Date, d.Departures, d.TotalCapacity, d.HeldSeats, d.BlockedSeats, d.ConfirmedSeats, d.RemainingSeats}
		style := 0
		if d.Departures > 0 && d.RemainingSeats == 0 {
			style = fullStyle
		}
		if err := writeRow(f, calendarSheet, i+2, row, style); err != nil {
			return err
		}
	}

	departureHeader := []interface{}{"Departure", "Resource", "Starts", "Status", "Capacity", "Held", "Blocked", "Confirmed", "Remaining"}
	if err := writeRow(f, departuresSheet, 1, departureHeader, headerStyle); err != nil {
		return err
	}
	for i, d := range details {
		c := d.Capacity
		row := []interface{}{
			d.Departure.ID, d.Departure.ResourceID, d.Departure.StartsAt.UTC().Format(time.RFC3339), string(d.Departure.Status),
			c.TotalCapacity, c.HeldSeats, c.BlockedSeats, c.ConfirmedSeats, c.RemainingSeats,
		}
		if err := writeRow(f, departuresSheet, i+2, row, 0); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(calendarSheet, "A", "A", 14)
	_ = f.SetColWidth(calendarSheet, "B", "G", 12)
	_ = f.SetColWidth(departuresSheet, "A", "A", 38)
	_ = f.SetColWidth(departuresSheet, "B", "D", 22)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	s.logger.Info().Int("days", len(days)).Int("departures", len(details)).Msg("calendar exported")
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	if style != 0 {
		last, err := excelize.CoordinatesToCellName(len(values), row)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, last, style); err != nil {
			return fmt.Errorf("style row %d: %w", row, err)
		}
	}
	return nil
}

// CalendarExportName is the download file name for a range.
func CalendarExportName(from, to time.Time) string {
	return fmt.Sprintf("calendar_%s_to_%s.xlsx", from.UTC().Format(models.CalendarDateLayout), to.UTC().Format(models.CalendarDateLayout))
}
