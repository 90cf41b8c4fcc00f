package payments

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

type fakeCounter struct{ next int64 }

func (f *fakeCounter) Next(ctx context.Context, name string) (int64, error) {
	f.next++
	return f.next, nil
}

func TestRecompute(t *testing.T) {
	cases := []struct {
		name        string
		gross, paid billing.Pence
		status      string
		balance     billing.Pence
	}{
		{"unpaid", 6000, 0, invoices.StatusSent, 6000},
		{"partial", 6000, 2000, invoices.StatusPartiallyPaid, 4000},
		{"paid exactly", 6000, 6000, invoices.StatusPaid, 0},
		{"reversed to zero", 6000, 0, invoices.StatusSent, 6000},
		{"zero gross", 0, 0, invoices.StatusPaid, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, balance := Recompute(tc.gross, tc.paid)
			if status != tc.status || balance != tc.balance {
				t.Errorf("Recompute(%d, %d) = %s/%d, want %s/%d",
					tc.gross, tc.paid, status, balance, tc.status, tc.balance)
			}
		})
	}
}

// Whatever sequence of payments and reversals is applied, gross = balance +
// total_paid must hold.
func TestRecomputeConservation(t *testing.T) {
	gross := billing.Pence(6000)
	var paid billing.Pence
	for _, delta := range []billing.Pence{2000, 1500, -1500, 4000} {
		paid += delta
		_, balance := Recompute(gross, paid)
		if balance+paid != gross {
			t.Fatalf("conservation violated: balance %d + paid %d != gross %d", balance, paid, gross)
		}
	}
}

func lockRow(gross, paid int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"invoice_id", "gross_pence", "total_paid_pence", "status"}).
		AddRow(int64(7), gross, paid, status)
}

func newReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReconciler(db, &fakeCounter{}, logging.Default()), mock
}

func TestApplyFullPayment(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM invoices WHERE invoice_number .* FOR UPDATE").
		WithArgs("INV-2025-0001").
		WillReturnRows(lockRow(6000, 0, invoices.StatusSent))
	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM invoice_appointments").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"appointment_id"}).AddRow(int64(1001)))
	mock.ExpectExec("UPDATE appointments SET payment_status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.Apply(context.Background(), "INV-2025-0001", Input{
		Amount: 6000, Method: MethodCard, Reference: "auth-xyz",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.InvoiceStatus != invoices.StatusPaid || res.Balance != 0 || res.TotalPaid != 6000 {
		t.Errorf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyPartialPayment(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-2025-0001").
		WillReturnRows(lockRow(6000, 0, invoices.StatusSent))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM invoice_appointments").
		WillReturnRows(sqlmock.NewRows([]string{"appointment_id"}))
	mock.ExpectCommit()

	res, err := r.Apply(context.Background(), "INV-2025-0001", Input{Amount: 2500, Method: MethodCash})
	if err != nil {
		t.Fatal(err)
	}
	if res.InvoiceStatus != invoices.StatusPartiallyPaid || res.Balance != 3500 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApplyOverpaymentRejectedWhole(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-2025-0001").
		WillReturnRows(lockRow(6000, 4000, invoices.StatusPartiallyPaid))
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), "INV-2025-0001", Input{Amount: 2001, Method: MethodCard})
	if !billing.IsKind(err, billing.KindOverpayment) {
		t.Fatalf("expected overpayment error, got %v", err)
	}
	// Overpayment is also a conflict for transport mapping.
	if !billing.IsKind(err, billing.KindConflict) {
		t.Error("overpayment must match conflict kind")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyReversal(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-2025-0001").
		WillReturnRows(lockRow(6000, 6000, invoices.StatusPaid))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM invoice_appointments").
		WillReturnRows(sqlmock.NewRows([]string{"appointment_id"}))
	mock.ExpectCommit()

	res, err := r.Apply(context.Background(), "INV-2025-0001", Input{Amount: 6000, Method: MethodReversal})
	if err != nil {
		t.Fatal(err)
	}
	if res.InvoiceStatus != invoices.StatusSent || res.TotalPaid != 0 || res.Balance != 6000 {
		t.Errorf("unexpected result after reversal: %+v", res)
	}
	if res.Payment.Amount != -6000 {
		t.Errorf("reversal must be stored negative, got %d", res.Payment.Amount)
	}
}

func TestApplyReversalBelowZeroRejected(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-2025-0001").
		WillReturnRows(lockRow(6000, 1000, invoices.StatusPartiallyPaid))
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), "INV-2025-0001", Input{Amount: 2000, Method: MethodReversal})
	if !billing.IsKind(err, billing.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApplyVoidInvoiceRejected(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-2025-0002").
		WillReturnRows(lockRow(6000, 0, invoices.StatusVoid))
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), "INV-2025-0002", Input{Amount: 1000, Method: MethodCash})
	if !billing.IsKind(err, billing.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApplyUnknownInvoice(t *testing.T) {
	r, mock := newReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("INV-9999-0000").
		WillReturnRows(sqlmock.NewRows([]string{"invoice_id", "gross_pence", "total_paid_pence", "status"}))
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), "INV-9999-0000", Input{Amount: 1000, Method: MethodCash})
	if !billing.IsKind(err, billing.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyValidation(t *testing.T) {
	r, _ := newReconciler(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, "INV-2025-0001", Input{Amount: 0, Method: MethodCash}); !billing.IsKind(err, billing.KindValidation) {
		t.Errorf("zero amount: expected validation error, got %v", err)
	}
	if _, err := r.Apply(ctx, "INV-2025-0001", Input{Amount: -50, Method: MethodCash}); !billing.IsKind(err, billing.KindValidation) {
		t.Errorf("negative amount: expected validation error, got %v", err)
	}
	if _, err := r.Apply(ctx, "INV-2025-0001", Input{Amount: 100, Method: "iou"}); !billing.IsKind(err, billing.KindValidation) {
		t.Errorf("unknown method: expected validation error, got %v", err)
	}
}
