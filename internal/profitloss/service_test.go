package profitloss

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/xuri/excelize/v2"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

type fakeCounter struct {
	next  int64
	names []string
}

func (f *fakeCounter) Next(ctx context.Context, name string) (int64, error) {
	f.next++
	f.names = append(f.names, name)
	return f.next, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, &fakeCounter{}, logging.Default()), mock
}

// Invoice I2 is void and outside this query's results; I1 is out of range.
// The April window returns only I3 and E1.
func TestReportRangeFiltering(t *testing.T) {
	s, mock := newService(t)

	mock.ExpectQuery("FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"issue_date", "invoice_number", "gross_pence"}).
			AddRow(date(2024, 4, 15), "INV-2024-0003", int64(5000)))
	mock.ExpectQuery("FROM manual_expenses").
		WillReturnRows(sqlmock.NewRows([]string{"date", "category", "description", "amount_pence"}).
			AddRow(date(2024, 4, 5), "Supplies", "Resistance bands", int64(3000)))

	report, err := s.Report(context.Background(), date(2024, 4, 1), date(2024, 4, 30))
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Totals.Income != 5000 || report.Totals.Expense != 3000 {
		t.Errorf("unexpected totals: %+v", report.Totals)
	}
	if len(report.InvoiceEntries) != 1 || report.InvoiceEntries[0].Description != "INV-2024-0003" {
		t.Errorf("unexpected invoice entries: %+v", report.InvoiceEntries)
	}
	if report.InvoiceEntries[0].Category != "Revenue" {
		t.Errorf("invoice entries are Revenue, got %s", report.InvoiceEntries[0].Category)
	}
	if len(report.ManualEntries) != 1 {
		t.Errorf("unexpected manual entries: %+v", report.ManualEntries)
	}
}

// Live invoices carry full issue timestamps. An invoice issued mid-afternoon
// on the last day of the range must still count, so the queries bind a
// half-open interval ending at midnight after the end date.
func TestReportIncludesLastDayTimestamps(t *testing.T) {
	s, mock := newService(t)

	issuedAt := time.Date(2024, 4, 30, 14, 23, 0, 0, time.UTC)
	mock.ExpectQuery("FROM invoices").
		WithArgs("void", date(2024, 4, 1), date(2024, 5, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"issue_date", "invoice_number", "gross_pence"}).
			AddRow(issuedAt, "INV-2024-0004", int64(6000)))
	mock.ExpectQuery("FROM manual_expenses").
		WithArgs(date(2024, 4, 1), date(2024, 5, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"date", "category", "description", "amount_pence"}))

	report, err := s.Report(context.Background(), date(2024, 4, 1), date(2024, 4, 30))
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(report.InvoiceEntries) != 1 || report.InvoiceEntries[0].Description != "INV-2024-0004" {
		t.Fatalf("last-day invoice missing: %+v", report.InvoiceEntries)
	}
	if report.Totals.Income != 6000 {
		t.Errorf("unexpected income total: %d", report.Totals.Income)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("query bounds: %v", err)
	}
}

func TestReportRejectsInvertedRange(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Report(context.Background(), date(2024, 5, 1), date(2024, 4, 1))
	if !billing.IsKind(err, billing.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func sampleReport() *Report {
	return &Report{
		InvoiceEntries: []Entry{
			{Date: date(2024, 4, 15), Category: "Revenue", Description: "INV-2024-0003", Amount: 5000, Source: SourceInvoice},
			{Date: date(2024, 4, 5), Category: "Revenue", Description: "INV-2024-0002", Amount: 8000, Source: SourceInvoice},
		},
		ManualEntries: []Entry{
			{Date: date(2024, 4, 5), Category: "Supplies", Description: "Resistance bands", Amount: 3000, Source: SourceManual},
		},
		Totals: Totals{Income: 13000, Expense: 3000},
	}
}

func TestSortedEntriesOrder(t *testing.T) {
	entries := sampleReport().SortedEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Date descending; manual sorts before invoice on the 2024-04-05 tie.
	if entries[0].Description != "INV-2024-0003" {
		t.Errorf("newest first, got %s", entries[0].Description)
	}
	if entries[1].Source != SourceManual {
		t.Errorf("manual before invoice on equal dates, got %s", entries[1].Source)
	}
	if entries[2].Description != "INV-2024-0002" {
		t.Errorf("unexpected last entry %s", entries[2].Description)
	}
}

func TestExportCSV(t *testing.T) {
	data, err := ExportCSV(sampleReport(), "GBP")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "Date,Category,Description,Amount (GBP),Source" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if len(lines) != 6 { // header + 3 entries + 2 totals
		t.Fatalf("expected 6 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[1], "INV-2024-0003") || !strings.Contains(lines[1], "50.00") {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if !strings.Contains(lines[4], "Total income") || !strings.Contains(lines[4], "130.00") {
		t.Errorf("unexpected income total %q", lines[4])
	}
}

func TestExportXLSXRoundTrips(t *testing.T) {
	data, err := ExportXLSX(sampleReport(), "GBP")
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Profit & Loss")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}
	if rows[0][3] != "Amount (GBP)" {
		t.Errorf("unexpected header row %v", rows[0])
	}
	if rows[1][2] != "INV-2024-0003" {
		t.Errorf("unexpected first data row %v", rows[1])
	}
	if rows[2][4] != SourceManual {
		t.Errorf("manual row expected second, got %v", rows[2])
	}
}

func TestCreateExpense(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	counter := &fakeCounter{}
	s := NewService(db, counter, logging.Default())

	mock.ExpectExec("INSERT INTO manual_expenses").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := s.CreateExpense(context.Background(), ExpenseInput{
		Date: date(2024, 4, 5), Category: "Supplies", Description: "Resistance bands", Amount: 3000,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if e.ExpenseID != 1 {
		t.Errorf("expected counter-allocated id, got %d", e.ExpenseID)
	}
	if len(counter.names) != 1 || counter.names[0] != counters.SeqExpense {
		t.Errorf("expected allocation from %s, got %v", counters.SeqExpense, counter.names)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	s, _ := newService(t)
	_, err := s.CreateExpense(context.Background(), ExpenseInput{Date: date(2024, 4, 5), Description: "x", Amount: 0})
	if !billing.IsKind(err, billing.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateExpenseNotFound(t *testing.T) {
	s, mock := newService(t)
	mock.ExpectExec("UPDATE manual_expenses").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateExpense(context.Background(), 99, ExpenseInput{
		Date: date(2024, 4, 5), Description: "x", Amount: 100,
	})
	if !billing.IsKind(err, billing.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteExpense(t *testing.T) {
	s, mock := newService(t)
	mock.ExpectExec("DELETE FROM manual_expenses").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.DeleteExpense(context.Background(), 7); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
}
