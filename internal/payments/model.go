// Package payments records payments against invoices and keeps invoice and
// appointment payment state consistent.
package payments

import (
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

// Payment methods. A reversal subtracts from the invoice's paid total.
const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodTransfer  = "transfer"
	MethodInsurance = "insurance"
	MethodCheque    = "cheque"
	MethodOther     = "other"
	MethodReversal  = "reversal"
)

// ValidMethod reports whether m is an accepted payment method.
func ValidMethod(m string) bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodInsurance, MethodCheque, MethodOther, MethodReversal:
		return true
	}
	return false
}

// Payment is one recorded payment. Amount is stored signed: reversals carry
// a negative amount so the paid total is a plain sum.
type Payment struct {
	PaymentID     int64         `json:"payment_id"`
	InvoiceID     int64         `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	Amount        billing.Pence `json:"amount_pence"`
	Method        string        `json:"method"`
	Reference     string        `json:"reference,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	PaidDate      time.Time     `json:"paid_date"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Input is an apply-payment request.
type Input struct {
	Amount    billing.Pence `json:"amount_pence"`
	Method    string        `json:"method"`
	Reference string        `json:"reference,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	Date      time.Time     `json:"date,omitempty"`
}
