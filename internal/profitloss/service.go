// Package profitloss aggregates invoice income and manual expenses over a
// date range, with CSV and XLSX export. The view is recomputed on each read.
package profitloss

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Entry sources.
const (
	SourceInvoice = "invoice"
	SourceManual  = "manual"
)

// Entry is one P&L row.
type Entry struct {
	Date        time.Time     `json:"date"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Amount      billing.Pence `json:"amount_pence"`
	Source      string        `json:"source"`
}

// Totals sums the report.
type Totals struct {
	Income  billing.Pence `json:"income_pence"`
	Expense billing.Pence `json:"expense_pence"`
}

// Report is the P&L view over an inclusive date range.
type Report struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InvoiceEntries []Entry   `json:"invoice_entries"`
	ManualEntries  []Entry   `json:"manual_entries"`
	Totals         Totals    `json:"totals"`
}

// ManualExpense is an operator-entered expense row.
type ManualExpense struct {
	ExpenseID   int64         `json:"expense_id"`
	Date        time.Time     `json:"date"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Amount      billing.Pence `json:"amount_pence"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ExpenseInput is a create/update request.
type ExpenseInput struct {
	Date        time.Time     `json:"date"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Amount      billing.Pence `json:"amount_pence"`
}

// Counter allocates expense ids.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Service computes reports and manages manual expenses.
type Service struct {
	db       *sql.DB
	counters Counter
	log      *logging.Logger
}

func NewService(db *sql.DB, counters Counter, log *logging.Logger) *Service {
	return &Service{db: db, counters: counters, log: log.Component("profitloss")}
}

// Report builds the P&L view for [start, end], both inclusive UTC dates.
// Live invoices carry full issue timestamps, so the range is widened to a
// half-open interval ending at midnight after the end date.
func (s *Service) Report(ctx context.Context, start, end time.Time) (*Report, error) {
	if end.Before(start) {
		return nil, billing.Validationf("end date before start date")
	}
	startDay := start.UTC().Truncate(24 * time.Hour)
	endExclusive := end.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	report := &Report{Start: start, End: end}

	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_date, invoice_number, gross_pence
		FROM invoices
		WHERE status <> $1 AND issue_date >= $2 AND issue_date < $3
		ORDER BY issue_date`, invoices.StatusVoid, startDay, endExclusive)
	if err != nil {
		return nil, fmt.Errorf("profitloss: query invoices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var gross int64
		if err := rows.Scan(&e.Date, &e.Description, &gross); err != nil {
			return nil, fmt.Errorf("profitloss: scan invoice: %w", err)
		}
		e.Category = "Revenue"
		e.Amount = billing.Pence(gross)
		e.Source = SourceInvoice
		report.InvoiceEntries = append(report.InvoiceEntries, e)
		report.Totals.Income += e.Amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profitloss: iterate invoices: %w", err)
	}

	expRows, err := s.db.QueryContext(ctx, `
		SELECT date, category, description, amount_pence
		FROM manual_expenses
		WHERE date >= $1 AND date < $2
		ORDER BY date`, startDay, endExclusive)
	if err != nil {
		return nil, fmt.Errorf("profitloss: query expenses: %w", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		var e Entry
		var amount int64
		if err := expRows.Scan(&e.Date, &e.Category, &e.Description, &amount); err != nil {
			return nil, fmt.Errorf("profitloss: scan expense: %w", err)
		}
		e.Amount = billing.Pence(amount)
		e.Source = SourceManual
		report.ManualEntries = append(report.ManualEntries, e)
		report.Totals.Expense += e.Amount
	}
	if err := expRows.Err(); err != nil {
		return nil, fmt.Errorf("profitloss: iterate expenses: %w", err)
	}
	return report, nil
}

// SortedEntries merges both entry lists for export: date descending, manual
// before invoice on equal dates.
func (r *Report) SortedEntries() []Entry {
	entries := make([]Entry, 0, len(r.InvoiceEntries)+len(r.ManualEntries))
	entries = append(entries, r.InvoiceEntries...)
	entries = append(entries, r.ManualEntries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.After(entries[j].Date)
		}
		return entries[i].Source == SourceManual && entries[j].Source == SourceInvoice
	})
	return entries
}

// CreateExpense records a manual expense.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (*ManualExpense, error) {
	if err := validateExpense(in); err != nil {
		return nil, err
	}
	id, err := s.counters.Next(ctx, counters.SeqExpense)
	if err != nil {
		return nil, err
	}
	e := &ManualExpense{
		ExpenseID:   id,
		Date:        in.Date,
		Category:    in.Category,
		Description: in.Description,
		Amount:      in.Amount,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manual_expenses (expense_id, date, category, description, amount_pence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ExpenseID, e.Date, e.Category, e.Description, int64(e.Amount), e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("profitloss: create expense: %w", err)
	}
	return e, nil
}

// UpdateExpense replaces an expense's fields.
func (s *Service) UpdateExpense(ctx context.Context, expenseID int64, in ExpenseInput) error {
	if err := validateExpense(in); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE manual_expenses SET date = $2, category = $3, description = $4, amount_pence = $5
		WHERE expense_id = $1`,
		expenseID, in.Date, in.Category, in.Description, int64(in.Amount))
	if err != nil {
		return fmt.Errorf("profitloss: update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("profitloss: update expense: %w", err)
	}
	if n == 0 {
		return billing.NotFoundf("expense %d not found", expenseID)
	}
	return nil
}

// DeleteExpense removes an expense permanently.
func (s *Service) DeleteExpense(ctx context.Context, expenseID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manual_expenses WHERE expense_id = $1`, expenseID)
	if err != nil {
		return fmt.Errorf("profitloss: delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("profitloss: delete expense: %w", err)
	}
	if n == 0 {
		return billing.NotFoundf("expense %d not found", expenseID)
	}
	return nil
}

func validateExpense(in ExpenseInput) error {
	switch {
	case in.Date.IsZero():
		return billing.Validationf("expense date required")
	case in.Description == "":
		return billing.Validationf("expense description required")
	case in.Amount <= 0:
		return billing.Validationf("expense amount must be positive")
	}
	return nil
}
