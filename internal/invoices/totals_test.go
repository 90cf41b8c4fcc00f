package invoices

import (
	"math/rand"
	"testing"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

func TestComputeTotalsSingleLine(t *testing.T) {
	lines := []LineItem{{Quantity: 1, UnitPrice: 6000}}
	got := ComputeTotals(lines, 0)
	if got.Subtotal != 6000 || got.TaxTotal != 0 || got.Gross != 6000 {
		t.Errorf("unexpected totals: %+v", got)
	}
	if lines[0].Net != 6000 || lines[0].Gross != 6000 {
		t.Errorf("line not filled: %+v", lines[0])
	}
}

func TestComputeTotalsWithTax(t *testing.T) {
	// 20% VAT on 33.33 is 6.666 which rounds half-up to 6.67.
	lines := []LineItem{{Quantity: 1, UnitPrice: 3333, TaxRateBP: 2000}}
	got := ComputeTotals(lines, 0)
	if got.TaxTotal != 667 {
		t.Errorf("expected tax 667, got %d", got.TaxTotal)
	}
	if got.Gross != 4000 {
		t.Errorf("expected gross 4000, got %d", got.Gross)
	}
}

func TestComputeTotalsLineDiscountFloorsAtZero(t *testing.T) {
	lines := []LineItem{{Quantity: 1, UnitPrice: 2000, DiscountAmount: 5000}}
	got := ComputeTotals(lines, 0)
	if got.Subtotal != 0 || got.Gross != 0 {
		t.Errorf("expected zero net for over-discounted line, got %+v", got)
	}
	if got.DiscountTotal != 5000 {
		t.Errorf("discount total should carry the full discount, got %d", got.DiscountTotal)
	}
}

func TestComputeTotalsInvoiceDiscountFloorsGross(t *testing.T) {
	lines := []LineItem{{Quantity: 2, UnitPrice: 1500}}
	got := ComputeTotals(lines, 5000)
	if got.Subtotal != 3000 {
		t.Errorf("expected subtotal 3000, got %d", got.Subtotal)
	}
	if got.Gross != 0 {
		t.Errorf("gross must floor at zero, got %d", got.Gross)
	}
	if got.DiscountTotal != 5000 {
		t.Errorf("expected discount total 5000, got %d", got.DiscountTotal)
	}
}

func TestComputeTotalsMultiLine(t *testing.T) {
	lines := []LineItem{
		{Quantity: 2, UnitPrice: 4500, DiscountAmount: 1000},         // net 8000
		{Quantity: 1, UnitPrice: 2550, TaxRateBP: 2000},              // net 2550, tax 510
		{Quantity: 3, UnitPrice: 100, DiscountAmount: 50, TaxRateBP: 500}, // net 250, tax 13 (12.5 half-up)
	}
	got := ComputeTotals(lines, 200)
	if got.Subtotal != 10800 {
		t.Errorf("subtotal: got %d", got.Subtotal)
	}
	if got.TaxTotal != 523 {
		t.Errorf("tax total: got %d", got.TaxTotal)
	}
	if got.DiscountTotal != 1250 {
		t.Errorf("discount total: got %d", got.DiscountTotal)
	}
	if got.Gross != 10800+523-200 {
		t.Errorf("gross: got %d", got.Gross)
	}
}

// Totals arithmetic must be non-negative and internally consistent for any
// input the validator admits.
func TestComputeTotalsRandomisedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(5)
		lines := make([]LineItem, n)
		for j := range lines {
			lines[j] = LineItem{
				Quantity:       1 + rng.Intn(4),
				UnitPrice:      billing.Pence(rng.Intn(50000)),
				DiscountAmount: billing.Pence(rng.Intn(10000)),
				TaxRateBP:      rng.Intn(3) * 1000,
			}
		}
		invDiscount := billing.Pence(rng.Intn(5000))
		got := ComputeTotals(lines, invDiscount)

		if got.Subtotal < 0 || got.TaxTotal < 0 || got.Gross < 0 {
			t.Fatalf("case %d: negative totals %+v", i, got)
		}
		var sumGross billing.Pence
		for _, l := range lines {
			if l.Net < 0 || l.Gross != l.Net+l.Tax {
				t.Fatalf("case %d: inconsistent line %+v", i, l)
			}
			sumGross += l.Gross
		}
		wantGross := sumGross - invDiscount
		if wantGross < 0 {
			wantGross = 0
		}
		if got.Gross != wantGross {
			t.Fatalf("case %d: gross %d, want %d", i, got.Gross, wantGross)
		}
	}
}
