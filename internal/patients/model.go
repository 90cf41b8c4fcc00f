// Package patients exposes the read-only patient directory consumed by the
// billing engine. Patients are created and maintained by external flows.
package patients

import (
	"regexp"
	"strings"
)

// BillingMode values.
const (
	BillingIndividual = "individual"
	BillingMonthly    = "monthly"
)

// Patient is the directory record the billing engine reads.
type Patient struct {
	PatientID           int64
	FirstName           string
	Surname             string
	PreferredName       string
	Email               string
	Phone               string
	PrimaryContactName  string
	PrimaryContactEmail string
	PrimaryContactPhone string
	BillingMode         string
	EmailActive         bool
	Archived            bool
}

// DisplayName returns the patient's full name.
func (p *Patient) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.Surname)
}

// BillingContact is the name/email/phone snapshot copied onto invoices at
// issuance. Primary contact details win over the patient's own when present.
type BillingContact struct {
	Name  string
	Email string
	Phone string
}

// BillingContact builds the invoice snapshot for this patient.
func (p *Patient) BillingContact() BillingContact {
	c := BillingContact{Name: p.DisplayName(), Email: p.Email, Phone: p.Phone}
	if p.PrimaryContactName != "" {
		c.Name = p.PrimaryContactName
	}
	if p.PrimaryContactEmail != "" {
		c.Email = p.PrimaryContactEmail
	}
	if p.PrimaryContactPhone != "" {
		c.Phone = p.PrimaryContactPhone
	}
	return c
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NameKey normalises a free-text name for exact matching: case-folded with
// whitespace collapsed. No fuzzy matching happens anywhere downstream.
func NameKey(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// NameKeys returns the candidate match keys for a patient, in priority
// order: "first surname", "preferred surname", preferred, first, surname.
func NameKeys(first, preferred, surname string) []string {
	candidates := []string{
		first + " " + surname,
		preferred + " " + surname,
		preferred,
		first,
		surname,
	}
	seen := make(map[string]struct{}, len(candidates))
	var keys []string
	for _, c := range candidates {
		k := NameKey(c)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
