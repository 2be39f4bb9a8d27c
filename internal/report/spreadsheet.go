package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	expensesSheet  = "Expenses"
	breakdownSheet = "Breakdown"
	tableHeaderRow = 5
)

// WriteSpreadsheet renders the same report as an .xlsx workbook: an Expenses sheet
// with one row per line plus the grand total, and a Breakdown sheet per category.
func WriteSpreadsheet(in Input) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", expensesSheet); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(breakdownSheet); err != nil {
		return nil, fmt.Errorf("creating breakdown sheet: %w", err)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, fmt.Errorf("creating number style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	c := in.Header
	rows := [][]interface{}{
		{displayText(c.programLabel()), "Report " + FormatID(in.Number)},
		{"Claimant", displayText(c.ClaimantName)},
		{"Project", displayText(c.Project)},
		{"Date", c.ReportDate},
	}
	for i, row := range rows {
		if err := setRow(f, expensesSheet, 1, i+1, row); err != nil {
			return nil, err
		}
	}

	header := []interface{}{"Date", "Merchant", "Category", "Document No.", "Amount (" + c.currency() + ")"}
	if err := setRow(f, expensesSheet, 1, tableHeaderRow, header); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(expensesSheet, "A5", "E5", bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	row := tableHeaderRow + 1
	for _, l := range in.Lines {
		values := []interface{}{l.Date, displayText(l.Merchant), categoryLabel(l.Category), l.DocumentNumber, amountValue(l.Amount)}
		if err := setRow(f, expensesSheet, 1, row, values); err != nil {
			return nil, err
		}
		row++
	}

	if err := setRow(f, expensesSheet, 1, row, []interface{}{"GRAND TOTAL", nil, nil, nil, amountValue(Total(in.Lines))}); err != nil {
		return nil, err
	}
	totalCell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetCellStyle(expensesSheet, totalCell, totalCell, bold); err != nil {
		return nil, fmt.Errorf("styling total: %w", err)
	}
	firstAmount, _ := excelize.CoordinatesToCellName(5, tableHeaderRow+1)
	lastAmount, _ := excelize.CoordinatesToCellName(5, row)
	if err := f.SetCellStyle(expensesSheet, firstAmount, lastAmount, money); err != nil {
		return nil, fmt.Errorf("styling amounts: %w", err)
	}

	if err := f.SetColWidth(expensesSheet, "A", "A", 12); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(expensesSheet, "B", "D", 30); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	if err := setRow(f, breakdownSheet, 1, 1, []interface{}{"Category", "Amount (" + c.currency() + ")"}); err != nil {
		return nil, err
	}
	for i, t := range Breakdown(in.Lines) {
		if err := setRow(f, breakdownSheet, 1, i+2, []interface{}{t.Category, amountValue(t.Amount)}); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(breakdownSheet, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, col, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("resolving cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}

// amountValue converts cents to the float excel stores; display rounding is left to the cell style
func amountValue(cents int64) float64 {
	return float64(cents) / 100
}
