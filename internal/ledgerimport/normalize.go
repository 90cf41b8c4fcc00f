// Package ledgerimport reconstructs historical appointments, invoices, and
// payments from a tabular ledger, idempotently and with per-row fault
// isolation.
package ledgerimport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/payments"
)

// serialEpoch is the spreadsheet serial date base (day 0 = 1899-12-30).
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseRowDate accepts a native date, a spreadsheet serial number, or a
// date string.
func ParseRowDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC().Truncate(24 * time.Hour), nil
	case float64:
		return serialDate(d)
	case int:
		return serialDate(float64(d))
	case int64:
		return serialDate(float64(d))
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, fmt.Errorf("ledgerimport: empty date")
		}
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			return serialDate(serial)
		}
		for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006", time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Truncate(24 * time.Hour), nil
			}
		}
		return time.Time{}, fmt.Errorf("ledgerimport: unparseable date %q", s)
	case nil:
		return time.Time{}, fmt.Errorf("ledgerimport: missing date")
	default:
		return time.Time{}, fmt.Errorf("ledgerimport: unsupported date type %T", v)
	}
}

func serialDate(serial float64) (time.Time, error) {
	if serial < 1 || serial > 200000 {
		return time.Time{}, fmt.Errorf("ledgerimport: serial date %v out of range", serial)
	}
	return serialEpoch.AddDate(0, 0, int(serial)), nil
}

// ParseMoney scrubs everything but sign, digits, and the decimal point, then
// parses. Non-parseable values are treated as zero.
func ParseMoney(v any) billing.Pence {
	switch m := v.(type) {
	case float64:
		return billing.FromFloat(m)
	case int:
		return billing.Pence(int64(m) * 100)
	case int64:
		return billing.Pence(m * 100)
	case string:
		var b strings.Builder
		for _, r := range m {
			if r >= '0' && r <= '9' || r == '.' || r == '-' {
				b.WriteRune(r)
			}
		}
		p, err := billing.ParsePence(b.String())
		if err != nil {
			return 0
		}
		return p
	default:
		return 0
	}
}

// MapMethod maps free-text payment type descriptions onto the live payment
// method enum by substring.
func MapMethod(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(t, "bank"), strings.Contains(t, "transfer"):
		return payments.MethodTransfer
	case strings.Contains(t, "cheque"), strings.Contains(t, "check"):
		return payments.MethodCheque
	case strings.Contains(t, "cash"):
		return payments.MethodCash
	case strings.Contains(t, "card"):
		return payments.MethodCard
	case strings.Contains(t, "insurance"):
		return payments.MethodInsurance
	default:
		return payments.MethodOther
	}
}

// SplitName separates a free-text patient name into first name and surname:
// first token and the rest.
func SplitName(name string) (first, surname string) {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
