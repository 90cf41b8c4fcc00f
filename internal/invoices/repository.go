package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

// Repository persists invoices, line items, and appointment links.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle so collaborating repositories can share a
// transaction.
func (r *Repository) DB() *sql.DB { return r.db }

const uniqueViolation = "23505"

// Create persists the invoice, its lines, and its appointment links in one
// transaction. A duplicate meta fingerprint surfaces as billing.AlreadyExists
// with the existing invoice's number; a duplicate appointment link as a
// conflict.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("invoices: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (invoice_id, invoice_number, patient_id, status, issue_date, due_date,
			discount_pence, subtotal_pence, tax_total_pence, discount_total_pence, gross_pence,
			total_paid_pence, balance_pence, billing_name, billing_email, billing_phone,
			email_log_status, sent_at, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		inv.InvoiceID, inv.InvoiceNumber, inv.PatientID, inv.Status, inv.IssueDate, inv.DueDate,
		int64(inv.Discount), int64(inv.Subtotal), int64(inv.TaxTotal), int64(inv.DiscountTotal),
		int64(inv.Gross), int64(inv.TotalPaid), int64(inv.Balance),
		inv.BillingName, inv.BillingEmail, inv.BillingPhone,
		inv.EmailLogStatus, inv.SentAt, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return r.mapCreateError(ctx, err, inv)
	}

	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.Active = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_line_items (line_id, invoice_id, description, quantity, unit_price_pence,
				discount_pence, tax_rate_bp, meta, net_pence, tax_pence, gross_pence, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true)`,
			l.LineID, inv.InvoiceID, l.Description, l.Quantity, int64(l.UnitPrice),
			int64(l.DiscountAmount), l.TaxRateBP, l.Meta, int64(l.Net), int64(l.Tax), int64(l.Gross))
		if err != nil {
			return r.mapCreateError(ctx, err, inv)
		}
	}

	for _, apptID := range inv.AppointmentIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_appointments (invoice_id, appointment_id, active)
			VALUES ($1, $2, true)`, inv.InvoiceID, apptID)
		if err != nil {
			return r.mapCreateError(ctx, err, inv)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("invoices: commit: %w", err)
	}
	return nil
}

// mapCreateError turns constraint violations into domain errors. The race
// loser on a meta fingerprint re-reads the winner's invoice number.
func (r *Repository) mapCreateError(ctx context.Context, err error, inv *Invoice) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "invoice_line_items_meta_active_idx":
			for _, l := range inv.Lines {
				if l.Meta == "" {
					continue
				}
				if number, ferr := r.FindNumberByMeta(ctx, l.Meta); ferr == nil && number != "" {
					return &billing.AlreadyExists{InvoiceNumber: number}
				}
			}
			return &billing.AlreadyExists{}
		case "invoice_appointments_active_idx":
			return billing.Conflictf("appointment already on a non-void invoice")
		case "invoices_invoice_number_key":
			return billing.Conflictf("invoice number %s already allocated", inv.InvoiceNumber)
		}
	}
	return fmt.Errorf("invoices: create: %w", err)
}

// FindNumberByMeta returns the invoice number owning an active line with the
// given meta fingerprint, or "" when none exists.
func (r *Repository) FindNumberByMeta(ctx context.Context, meta string) (string, error) {
	var number string
	err := r.db.QueryRowContext(ctx, `
		SELECT i.invoice_number
		FROM invoice_line_items l
		JOIN invoices i ON i.invoice_id = l.invoice_id
		WHERE l.meta = $1 AND l.active AND i.status <> $2
		LIMIT 1`, meta, StatusVoid).Scan(&number)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invoices: find by meta: %w", err)
	}
	return number, nil
}

// ActiveNumberForAppointment returns the non-void invoice number an
// appointment is linked to, or "" when unlinked.
func (r *Repository) ActiveNumberForAppointment(ctx context.Context, appointmentID int64) (string, error) {
	var number string
	err := r.db.QueryRowContext(ctx, `
		SELECT i.invoice_number
		FROM invoice_appointments ia
		JOIN invoices i ON i.invoice_id = ia.invoice_id
		WHERE ia.appointment_id = $1 AND ia.active AND i.status <> $2
		LIMIT 1`, appointmentID, StatusVoid).Scan(&number)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invoices: find by appointment: %w", err)
	}
	return number, nil
}

const invoiceColumns = `invoice_id, invoice_number, patient_id, status, issue_date, due_date,
	discount_pence, subtotal_pence, tax_total_pence, discount_total_pence, gross_pence,
	total_paid_pence, balance_pence, billing_name, COALESCE(billing_email, ''), COALESCE(billing_phone, ''),
	email_log_status, sent_at, paid_at, COALESCE(pdf_path, ''), pdf_generated_at, created_at, updated_at`

// FindByNumber loads a full invoice with lines and appointment links, or nil
// when unknown.
func (r *Repository) FindByNumber(ctx context.Context, number string) (*Invoice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number)
	inv, err := scanInvoice(row)
	if err != nil || inv == nil {
		return inv, err
	}
	if err := r.loadDetails(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Repository) loadDetails(ctx context.Context, inv *Invoice) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT line_id, description, quantity, unit_price_pence, discount_pence, tax_rate_bp,
			COALESCE(meta, ''), net_pence, tax_pence, gross_pence, active
		FROM invoice_line_items WHERE invoice_id = $1 ORDER BY line_id`, inv.InvoiceID)
	if err != nil {
		return fmt.Errorf("invoices: load lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l LineItem
		var unit, disc, net, tax, gross int64
		if err := rows.Scan(&l.LineID, &l.Description, &l.Quantity, &unit, &disc, &l.TaxRateBP,
			&l.Meta, &net, &tax, &gross, &l.Active); err != nil {
			return fmt.Errorf("invoices: scan line: %w", err)
		}
		l.UnitPrice, l.DiscountAmount = billing.Pence(unit), billing.Pence(disc)
		l.Net, l.Tax, l.Gross = billing.Pence(net), billing.Pence(tax), billing.Pence(gross)
		inv.Lines = append(inv.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("invoices: iterate lines: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(appointment_id ORDER BY appointment_id), '{}')
		FROM invoice_appointments WHERE invoice_id = $1`, inv.InvoiceID).
		Scan(pq.Array(&inv.AppointmentIDs))
	if err != nil {
		return fmt.Errorf("invoices: load appointment links: %w", err)
	}
	return nil
}

// MarkVoid transitions the invoice to void in one transaction: line metas and
// appointment links are deactivated so fingerprints and appointments are
// released. Linked appointments get the given payment status.
func (r *Repository) MarkVoid(ctx context.Context, inv *Invoice, appointmentStatus string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("invoices: begin void: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		UPDATE invoices SET status = $2, updated_at = now() WHERE invoice_id = $1`,
		inv.InvoiceID, StatusVoid); err != nil {
		return fmt.Errorf("invoices: void invoice: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE invoice_line_items SET active = false WHERE invoice_id = $1`, inv.InvoiceID); err != nil {
		return fmt.Errorf("invoices: release line metas: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE invoice_appointments SET active = false WHERE invoice_id = $1`, inv.InvoiceID); err != nil {
		return fmt.Errorf("invoices: release appointment links: %w", err)
	}
	if len(inv.AppointmentIDs) > 0 {
		if _, err = tx.ExecContext(ctx, `
			UPDATE appointments SET payment_status = $2, updated_at = now()
			WHERE appointment_id = ANY($1)`, pq.Array(inv.AppointmentIDs), appointmentStatus); err != nil {
			return fmt.Errorf("invoices: revert appointment payment status: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("invoices: commit void: %w", err)
	}
	inv.Status = StatusVoid
	return nil
}

// SetPDF records where the rendered document was stored.
func (r *Repository) SetPDF(ctx context.Context, number, path string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET pdf_path = $2, pdf_generated_at = $3, updated_at = now()
		WHERE invoice_number = $1`, number, path, at)
	if err != nil {
		return fmt.Errorf("invoices: set pdf: %w", err)
	}
	return nil
}

// SetEmailLog records the email dispatch outcome.
func (r *Repository) SetEmailLog(ctx context.Context, number, status string, sentAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET email_log_status = $2, sent_at = COALESCE($3, sent_at), updated_at = now()
		WHERE invoice_number = $1`, number, status, sentAt)
	if err != nil {
		return fmt.Errorf("invoices: set email log: %w", err)
	}
	return nil
}

func scanInvoice(row *sql.Row) (*Invoice, error) {
	var inv Invoice
	var disc, sub, tax, discTotal, gross, paid, balance int64
	err := row.Scan(&inv.InvoiceID, &inv.InvoiceNumber, &inv.PatientID, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &disc, &sub, &tax, &discTotal, &gross, &paid, &balance,
		&inv.BillingName, &inv.BillingEmail, &inv.BillingPhone,
		&inv.EmailLogStatus, &inv.SentAt, &inv.PaidAt, &inv.PDFPath, &inv.PDFGeneratedAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invoices: scan: %w", err)
	}
	inv.Discount, inv.Subtotal, inv.TaxTotal = billing.Pence(disc), billing.Pence(sub), billing.Pence(tax)
	inv.DiscountTotal, inv.Gross = billing.Pence(discTotal), billing.Pence(gross)
	inv.TotalPaid, inv.Balance = billing.Pence(paid), billing.Pence(balance)
	return &inv, nil
}
