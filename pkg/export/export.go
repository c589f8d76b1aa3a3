// Package export writes a wizard session out as CSV or an Excel workbook.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const (
	sheetAssignments = "Assignments"
	sheetTimeFrame   = "TimeFrame"
	sheetConstraints = "Constraints"
)

// AssignmentsCSV writes one line per assignment under a header row.
func AssignmentsCSV(w io.Writer, records []models.AssignmentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"teacher", "subject", "class", "periods"}); err != nil {
		return err
	}
	for _, a := range records {
		if err := cw.Write([]string{a.Teacher, a.Subject, a.Class, strconv.Itoa(a.Periods)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Workbook builds an .xlsx file with the assignments, the week and the constraints.
func Workbook(snap models.Snapshot) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetAssignments); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetTimeFrame); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetConstraints); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F46E5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	rows := [][]any{{"Teacher", "Subject", "Class", "Periods"}}
	total := 0
	for _, a := range snap.Assignments {
		rows = append(rows, []any{a.Teacher, a.Subject, a.Class, a.Periods})
		total += a.Periods
	}
	rows = append(rows, []any{"Total", "", "", total})
	if err := writeRows(f, sheetAssignments, rows, header, colWidth{"A", "C", 20}); err != nil {
		return nil, err
	}

	rows = [][]any{{"Day", "Morning", "Afternoon"}}
	for _, d := range snap.TimeFrame {
		rows = append(rows, []any{d.Day, d.Morning, d.Afternoon})
	}
	if err := writeRows(f, sheetTimeFrame, rows, header, colWidth{"A", "A", 14}); err != nil {
		return nil, err
	}

	rows = [][]any{{"Priority", "Constraint"}}
	for _, c := range snap.Constraints {
		rows = append(rows, []any{string(c.Priority), c.Text})
	}
	if err := writeRows(f, sheetConstraints, rows, header, colWidth{"B", "B", 60}); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

type colWidth struct {
	from, to string
	width    float64
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int, cols colWidth) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, cols.from, cols.to, cols.width); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}
