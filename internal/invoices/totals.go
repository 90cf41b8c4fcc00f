package invoices

import "github.com/bridgesphysio/clinic-portal/internal/billing"

// Totals is the computed money summary of an invoice.
type Totals struct {
	Subtotal      billing.Pence
	TaxTotal      billing.Pence
	DiscountTotal billing.Pence
	Gross         billing.Pence
}

// ComputeTotals fills each line's net/tax/gross and returns the invoice
// totals. Pure arithmetic in pence, half-up rounding on tax.
//
// Per line: net = max(quantity*unit - discount, 0), tax at the line's rate on
// net, gross = net + tax. The invoice-level discount is subtracted from the
// summed gross, floored at zero, and counted into the discount total.
func ComputeTotals(lines []LineItem, invoiceDiscount billing.Pence) Totals {
	var t Totals
	for i := range lines {
		l := &lines[i]
		net := billing.Pence(int64(l.Quantity))*l.UnitPrice - l.DiscountAmount
		if net < 0 {
			net = 0
		}
		l.Net = net
		l.Tax = billing.TaxOn(net, l.TaxRateBP)
		l.Gross = l.Net + l.Tax

		t.Subtotal += l.Net
		t.TaxTotal += l.Tax
		t.DiscountTotal += l.DiscountAmount
		t.Gross += l.Gross
	}
	t.DiscountTotal += invoiceDiscount
	t.Gross -= invoiceDiscount
	if t.Gross < 0 {
		t.Gross = 0
	}
	return t
}
