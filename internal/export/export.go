// Package export renders a plan's course lists as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/LehuyH/transfer-helper/internal/plan"
)

const (
	KindRequired = "Hard Requirement"
	KindSelected = "User Selected"

	sheetRequired = "Required"
	sheetSelected = "Selected"
)

var header = []string{"Code", "Title", "Units", "Required By", "Kind"}

// Rows flattens the report: hard requirements first, then user selections.
func Rows(r plan.Report) [][]string {
	rows := make([][]string, 0, len(r.Required)+len(r.Selected))
	for _, l := range r.Required {
		rows = append(rows, row(l, KindRequired))
	}
	for _, l := range r.Selected {
		rows = append(rows, row(l, KindSelected))
	}
	return rows
}

func row(l plan.CourseLine, kind string) []string {
	return []string{l.Code(), l.Course.CourseTitle, l.Course.UnitsLabel(), strings.Join(l.RequiredBy, "; "), kind}
}

func WriteCSV(w io.Writer, r plan.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(Rows(r)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with one sheet per course list.
func WriteXLSX(w io.Writer, r plan.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRequired); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetSelected); err != nil {
		return err
	}

	sheets := []struct {
		name  string
		lines []plan.CourseLine
		kind  string
	}{
		{sheetRequired, r.Required, KindRequired},
		{sheetSelected, r.Selected, KindSelected},
	}
	for _, s := range sheets {
		if err := setRow(f, s.name, 1, header); err != nil {
			return err
		}
		for i, l := range s.lines {
			if err := setRow(f, s.name, i+2, row(l, s.kind)); err != nil {
				return err
			}
		}
		if err := f.SetColWidth(s.name, "A", "A", 12); err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, "B", "B", 36); err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, "D", "D", 48); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

// Filename builds a download name such as
// "transfer-plan-de-anza-college-1a2b3c4d.csv".
func Filename(r plan.Report, ext string) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(r.FromName), "-"), "-")
	if slug == "" {
		slug = "plan"
	}
	id := r.PlanID
	if len(id) > 8 {
		id = id[:8]
	}
	name := "transfer-plan-" + slug
	if id != "" {
		name += "-" + id
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}
