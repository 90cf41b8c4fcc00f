// Package invoices implements invoice assembly, numbering, totals, and the
// void transition.
package invoices

import (
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

// Invoice statuses.
const (
	StatusDraft         = "draft"
	StatusSent          = "sent"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
	StatusVoid          = "void"
)

// Email log statuses.
const (
	EmailNotSent = "not_sent"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// LineItem is one invoice line. Meta carries the idempotency fingerprint for
// lines created by automated paths; Active is cleared when the owning invoice
// is voided, releasing the fingerprint.
type LineItem struct {
	LineID         string        `json:"line_id"`
	Description    string        `json:"description"`
	Quantity       int           `json:"quantity"`
	UnitPrice      billing.Pence `json:"unit_price_pence"`
	DiscountAmount billing.Pence `json:"discount_pence"`
	TaxRateBP      int           `json:"tax_rate_bp"`
	Meta           string        `json:"meta,omitempty"`
	Net            billing.Pence `json:"net_pence"`
	Tax            billing.Pence `json:"tax_pence"`
	Gross          billing.Pence `json:"gross_pence"`
	Active         bool          `json:"-"`
}

// Invoice is the billing document. Monetary fields are pence.
type Invoice struct {
	InvoiceID      int64         `json:"invoice_id"`
	InvoiceNumber  string        `json:"invoice_number"`
	PatientID      int64         `json:"patient_id"`
	Status         string        `json:"status"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	Lines          []LineItem    `json:"line_items"`
	AppointmentIDs []int64       `json:"appointment_ids,omitempty"`
	Discount       billing.Pence `json:"discount_pence"`
	Subtotal       billing.Pence `json:"subtotal_pence"`
	TaxTotal       billing.Pence `json:"tax_total_pence"`
	DiscountTotal  billing.Pence `json:"discount_total_pence"`
	Gross          billing.Pence `json:"gross_pence"`
	TotalPaid      billing.Pence `json:"total_paid_pence"`
	Balance        billing.Pence `json:"balance_pence"`

	// Billing contact snapshot, frozen at assembly time.
	BillingName  string `json:"billing_name"`
	BillingEmail string `json:"billing_email,omitempty"`
	BillingPhone string `json:"billing_phone,omitempty"`

	EmailLogStatus string     `json:"email_log_status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	PDFPath        string     `json:"pdf_path,omitempty"`
	PDFGeneratedAt *time.Time `json:"pdf_generated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
