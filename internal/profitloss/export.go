package profitloss

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"Date", "Category", "Description", "Amount", "Source"}

func exportRows(r *Report) [][]string {
	entries := r.SortedEntries()
	rows := make([][]string, 0, len(entries)+2)
	for _, e := range entries {
		rows = append(rows, []string{
			e.Date.Format("2006-01-02"),
			e.Category,
			e.Description,
			e.Amount.Format(),
			e.Source,
		})
	}
	rows = append(rows,
		[]string{"", "", "Total income", r.Totals.Income.Format(), ""},
		[]string{"", "", "Total expenses", r.Totals.Expense.Format(), ""})
	return rows
}

// ExportCSV renders the report as CSV in the reporting currency.
func ExportCSV(r *Report, currency string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(exportHeader))
	copy(header, exportHeader)
	header[3] = fmt.Sprintf("Amount (%s)", currency)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("profitloss: write csv header: %w", err)
	}
	for _, row := range exportRows(r) {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("profitloss: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("profitloss: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportXLSX renders the report as a single-sheet workbook with the same row
// projection as the CSV export.
func ExportXLSX(r *Report, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Profit & Loss"
	f.SetSheetName(f.GetSheetName(0), sheet)

	header := make([]string, len(exportHeader))
	copy(header, exportHeader)
	header[3] = fmt.Sprintf("Amount (%s)", currency)
	for col, v := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return nil, fmt.Errorf("profitloss: write xlsx header: %w", err)
		}
	}
	for i, row := range exportRows(r) {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("profitloss: write xlsx cell: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("profitloss: write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
