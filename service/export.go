package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/AnTengye/solarflow/model"
)

// Workbook sheet names of a stage export
const (
	ExportPendingSheet = "Pending"
	ExportHistorySheet = "History"
	ExportYieldSheet   = "Yield"
)

// FieldTitle is the column title of a field: its sheet header when declared,
// otherwise the field name in words.
func FieldTitle(f model.FieldDef) string {
	if f.Header != "" {
		return f.Header
	}
	words := strings.Split(f.Name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// ExportStage renders a stage's pending and history lists as a workbook.
func ExportStage(stage *model.StageColumnMap, part model.Partition) (*excelize.File, string, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", ExportPendingSheet)
	if _, err := f.NewSheet(ExportHistorySheet); err != nil {
		return nil, "", fmt.Errorf("create history sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("create header style: %w", err)
	}

	headers := []string{"Row"}
	for _, field := range stage.Fields {
		headers = append(headers, FieldTitle(field))
	}

	write := func(sheet string, records []*model.Record, completed bool) error {
		cols := headers
		if completed {
			cols = append(append([]string{}, headers...), "Completed At")
		}
		if err := writeHeader(f, sheet, cols, headerStyle); err != nil {
			return err
		}
		for i, rec := range records {
			values := make([]interface{}, 0, len(cols))
			values = append(values, rec.RowIndex)
			for _, field := range stage.Fields {
				values = append(values, rec.Fields[field.Name])
			}
			if completed {
				values = append(values, rec.CompletedAt)
			}
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, rec.RowIndex, err)
			}
		}
		return nil
	}

	if err := write(ExportPendingSheet, part.Pending, false); err != nil {
		return nil, "", err
	}
	if err := write(ExportHistorySheet, part.History, true); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s_%s.xlsx", stage.Name, time.Now().Format("20060102"))
	return f, filename, nil
}

// ExportYield renders a yield report as a single-sheet workbook.
func ExportYield(report *YieldReport) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", ExportYieldSheet)

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	headers := []string{"Rank", "Enquiry Number", "Customer", "Inverter Serial",
		"Capacity (kWp)", "Energy (kWh)", "Specific Yield (kWh/kWp)", "Days", "Error"}
	if err := writeHeader(f, ExportYieldSheet, headers, boldStyle); err != nil {
		return nil, err
	}

	for i, e := range report.Entries {
		row := i + 2
		values := []interface{}{e.Rank, e.EnquiryNumber, e.Customer, e.Serial,
			e.CapacityKWp, e.WeeklyKWh, e.SpecificYield, e.Days, e.Error}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(ExportYieldSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write yield row %d: %w", row, err)
		}
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, float64(len(h)+4)); err != nil {
			return fmt.Errorf("size %s column %s: %w", sheet, col, err)
		}
	}
	return nil
}
