package payments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bridgesphysio/clinic-portal/internal/appointments"
	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Counter allocates payment ids.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Reconciler applies payments. Application is serialised per invoice by a
// row lock, so concurrent payments are ordered and each sees its
// predecessor's totals.
type Reconciler struct {
	db       *sql.DB
	counters Counter
	log      *logging.Logger
}

func NewReconciler(db *sql.DB, counters Counter, log *logging.Logger) *Reconciler {
	return &Reconciler{db: db, counters: counters, log: log.Component("reconciler")}
}

// Result reports the post-payment invoice state.
type Result struct {
	Payment       *Payment      `json:"payment"`
	InvoiceStatus string        `json:"invoice_status"`
	TotalPaid     billing.Pence `json:"total_paid_pence"`
	Balance       billing.Pence `json:"balance_pence"`
}

// Apply records a payment and recomputes the invoice. Amounts beyond the
// balance are rejected whole with an overpayment error; nothing partially
// applies. Working in integer pence absorbs the half-penny rounding
// tolerance the balance check allows.
func (r *Reconciler) Apply(ctx context.Context, invoiceNumber string, in Input) (*Result, error) {
	if in.Amount <= 0 {
		return nil, billing.Validationf("payment amount must be positive")
	}
	if !ValidMethod(in.Method) {
		return nil, billing.Validationf("unknown payment method %q", in.Method)
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: begin: %w", err)
	}
	defer tx.Rollback()

	var invoiceID int64
	var gross, totalPaid int64
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT invoice_id, gross_pence, total_paid_pence, status
		FROM invoices WHERE invoice_number = $1 FOR UPDATE`, invoiceNumber).
		Scan(&invoiceID, &gross, &totalPaid, &status)
	if err == sql.ErrNoRows {
		return nil, billing.NotFoundf("invoice %s not found", invoiceNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("payments: lock invoice: %w", err)
	}
	if status == invoices.StatusVoid {
		return nil, billing.Conflictf("invoice %s is void", invoiceNumber)
	}

	signed := in.Amount
	if in.Method == MethodReversal {
		signed = -in.Amount
		if totalPaid+int64(signed) < 0 {
			return nil, billing.Conflictf("reversal of %s exceeds paid total %s",
				in.Amount.Format(), billing.Pence(totalPaid).Format())
		}
	} else {
		balance := gross - totalPaid
		if int64(in.Amount) > balance {
			return nil, billing.Overpaymentf("payment of %s exceeds balance %s on %s",
				in.Amount.Format(), billing.Pence(balance).Format(), invoiceNumber)
		}
	}

	paymentID, err := r.counters.Next(ctx, counters.SeqPayment)
	if err != nil {
		return nil, err
	}
	p := &Payment{
		PaymentID:     paymentID,
		InvoiceID:     invoiceID,
		InvoiceNumber: invoiceNumber,
		Amount:        signed,
		Method:        in.Method,
		Reference:     in.Reference,
		Notes:         in.Notes,
		PaidDate:      in.Date,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (payment_id, invoice_id, invoice_number, amount_pence, method, reference, notes, paid_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.PaymentID, p.InvoiceID, p.InvoiceNumber, int64(p.Amount), p.Method,
		p.Reference, p.Notes, p.PaidDate, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("payments: insert: %w", err)
	}

	newPaid := billing.Pence(totalPaid) + signed
	newStatus, balance := Recompute(billing.Pence(gross), newPaid)

	var paidAt any
	if newStatus == invoices.StatusPaid {
		paidAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET total_paid_pence = $2, balance_pence = $3, status = $4,
		    paid_at = CASE WHEN $4 = 'paid' THEN COALESCE(paid_at, $5::timestamptz) ELSE NULL END,
		    updated_at = now()
		WHERE invoice_id = $1`,
		invoiceID, int64(newPaid), int64(balance), newStatus, paidAt)
	if err != nil {
		return nil, fmt.Errorf("payments: update invoice: %w", err)
	}

	if err := r.propagate(ctx, tx, invoiceID, newStatus); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("payments: commit: %w", err)
	}

	r.log.Info("payment applied",
		"invoice_number", invoiceNumber, "payment_id", paymentID,
		"amount_pence", int64(signed), "method", in.Method,
		"invoice_status", newStatus, "balance_pence", int64(balance))
	return &Result{Payment: p, InvoiceStatus: newStatus, TotalPaid: newPaid, Balance: balance}, nil
}

// Recompute derives the invoice status and balance from its gross and paid
// totals. Pure; shared with the importer's payment path.
func Recompute(gross, totalPaid billing.Pence) (status string, balance billing.Pence) {
	balance = gross - totalPaid
	if balance < 0 {
		balance = 0
	}
	switch {
	case balance == 0:
		return invoices.StatusPaid, 0
	case totalPaid == 0:
		return invoices.StatusSent, balance
	default:
		return invoices.StatusPartiallyPaid, balance
	}
}

// propagate pushes the invoice's payment state onto its linked appointments.
func (r *Reconciler) propagate(ctx context.Context, tx *sql.Tx, invoiceID int64, invoiceStatus string) error {
	var apptStatus string
	switch invoiceStatus {
	case invoices.StatusPaid:
		apptStatus = appointments.PayPaid
	case invoices.StatusPartiallyPaid:
		apptStatus = appointments.PayPartial
	case invoices.StatusSent:
		apptStatus = appointments.PayPending
	default:
		return nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT appointment_id FROM invoice_appointments WHERE invoice_id = $1 AND active`, invoiceID)
	if err != nil {
		return fmt.Errorf("payments: load links: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("payments: scan link: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("payments: iterate links: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE appointments SET payment_status = $2, updated_at = now()
		WHERE appointment_id = ANY($1)`, pq.Array(ids), apptStatus)
	if err != nil {
		return fmt.Errorf("payments: propagate payment status: %w", err)
	}
	return nil
}

// ListForInvoice returns the payments recorded against an invoice, oldest
// first.
func (r *Reconciler) ListForInvoice(ctx context.Context, invoiceNumber string) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payment_id, invoice_id, invoice_number, amount_pence, method,
			COALESCE(reference, ''), COALESCE(notes, ''), paid_date, created_at
		FROM payments WHERE invoice_number = $1 ORDER BY payment_id`, invoiceNumber)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		var amount int64
		if err := rows.Scan(&p.PaymentID, &p.InvoiceID, &p.InvoiceNumber, &amount, &p.Method,
			&p.Reference, &p.Notes, &p.PaidDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		p.Amount = billing.Pence(amount)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: iterate: %w", err)
	}
	return out, nil
}
