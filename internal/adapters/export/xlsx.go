// Package export renders the ranked candidate view as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/internal/domain/ranking"
)

// Sheet names.
const (
	SheetCandidates = "Ranked Candidates"
	SheetSummary    = "Summary"
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"Rank", "Name", "Role", "Score", "Overall Match", "Role Fit",
	"Experience", "Qualification", "Special Traits", "Summary",
	"Fit Reason", "Improvement Areas", "Next Step",
}

var widths = []float64{8, 24, 22, 8, 14, 10, 12, 14, 30, 50, 50, 40, 24}

// Score bands for row fills.
var bands = []struct {
	min   int
	color string
}{
	{90, "C6EFCE"},
	{70, "FFEB9C"},
	{50, "FFC7CE"},
	{0, "FF9999"},
}

// Write renders candidates in the given order. titleOf resolves role ids to
// display titles.
func Write(w io.Writer, candidates []model.Candidate, titleOf func(roleID string) string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetCandidates); err != nil {
		return fmt.Errorf("%w: %w", ErrWorkbook, err)
	}
	if err := writeCandidates(f, candidates, titleOf); err != nil {
		return fmt.Errorf("%w: candidates sheet: %w", ErrWorkbook, err)
	}
	if err := writeSummary(f, candidates); err != nil {
		return fmt.Errorf("%w: summary sheet: %w", ErrWorkbook, err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("%w: %w", ErrWorkbook, err)
	}
	return nil
}

func writeCandidates(f *excelize.File, candidates []model.Candidate, titleOf func(string) string) error {
	sheet := SheetCandidates

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	bandStyles := make([]int, len(bands))
	for i, b := range bands {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{b.color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return err
		}
		bandStyles[i] = id
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	for i, width := range widths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return err
		}
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", row); err != nil {
		return err
	}

	for i, c := range candidates {
		style := bandStyles[band(c.Score)]
		values := []interface{}{
			i + 1, c.Name, titleOf(c.RoleID), c.Score, c.OverallMatch, c.RoleFit,
			c.Experience, c.Qualification, strings.Join(c.SpecialTraits, ", "), c.Summary,
			c.FitReason, c.ImprovementAreas, c.NextStepRecommendation,
		}
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = excelize.Cell{StyleID: style, Value: v}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}

	if len(candidates) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(headers), len(candidates)+1)
	if err != nil {
		return err
	}
	return f.AutoFilter(sheet, "A1:"+last, nil)
}

func writeSummary(f *excelize.File, candidates []model.Candidate) error {
	sheet := SheetSummary
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", 24); err != nil {
		return err
	}

	stats := ranking.AggregateStats(candidates)
	counts := make([]int, len(bands))
	for _, c := range candidates {
		counts[band(c.Score)]++
	}

	rows := [][]interface{}{
		{"Candidates", stats.Count},
		{"Average Score", stats.AverageScore},
		{"Excellent (90-100)", counts[0]},
		{"Good (70-89)", counts[1]},
		{"Fair (50-69)", counts[2]},
		{"Poor (<50)", counts[3]},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

func band(score int) int {
	for i, b := range bands {
		if score >= b.min {
			return i
		}
	}
	return len(bands) - 1
}
