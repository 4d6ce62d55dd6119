package export

import (
	"fmt"
	"time"

	"slotcal/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Slot occupancy"

// WriteOccupancy builds an xlsx grid of slots (rows) by days (columns) for
// the given range and returns the workbook. Every day a booking covers gets
// its course name in the slot's row.
func WriteOccupancy(bookings []*models.Booking, startDate, endDate time.Time) (*excelize.File, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date %s before start date %s",
			endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format("Jan 2, 2006"), endDate.Format("Jan 2, 2006")))

	dateCols := writeDateHeaders(f, startDate, endDate)
	writeSlotHeaders(f)
	writeBookings(f, bookings, dateCols)

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	lastCol, _ := excelize.ColumnNumberToName(len(dateCols) + 1)
	_ = f.SetColWidth(sheetName, "B", lastCol, 18)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteOccupancyFile renders the grid and saves it to path.
func WriteOccupancyFile(path string, bookings []*models.Booking, startDate, endDate time.Time) error {
	f, err := WriteOccupancy(bookings, startDate, endDate)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeDateHeaders(f *excelize.File, startDate, endDate time.Time) map[string]int {
	col := 2
	dateCols := make(map[string]int)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for day := models.StartOfDay(startDate); !day.After(endDate); day = day.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, day.Format("Jan 2"))
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		dateCols[day.Format("2006-01-02")] = col
		col++
	}
	return dateCols
}

func writeSlotHeaders(f *excelize.File) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	for i, slot := range models.Slots {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheetName, cell, slot)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func writeBookings(f *excelize.File, bookings []*models.Booking, dateCols map[string]int) {
	slotRows := make(map[string]int, len(models.Slots))
	for i, slot := range models.Slots {
		slotRows[slot] = i + 3
	}

	for _, b := range bookings {
		row, ok := slotRows[b.Slot]
		if !ok {
			continue
		}
		for day := models.StartOfDay(b.Start); !day.After(b.End); day = day.AddDate(0, 0, 1) {
			col, ok := dateCols[day.Format("2006-01-02")]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, b.CourseName)
		}
	}
}
