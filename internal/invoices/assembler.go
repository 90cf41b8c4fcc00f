package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bridgesphysio/clinic-portal/internal/appointments"
	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/communications"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/internal/patients"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// LineDraft is one requested invoice line.
type LineDraft struct {
	Description    string        `json:"description"`
	Quantity       int           `json:"quantity"`
	UnitPrice      billing.Pence `json:"unit_price_pence"`
	DiscountAmount billing.Pence `json:"discount_pence"`
	TaxRateBP      int           `json:"tax_rate_bp"`
	Meta           string        `json:"-"`
}

// Draft is an invoice assembly request.
type Draft struct {
	PatientID      int64         `json:"patient_id"`
	Lines          []LineDraft   `json:"line_items"`
	AppointmentIDs []int64       `json:"appointment_ids,omitempty"`
	Discount       billing.Pence `json:"discount_pence"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	AsDraft        bool          `json:"as_draft"`

	// Effects. RecordIssueNote is set by callers that don't write their own
	// billing note (the importer path).
	RenderPDF       bool `json:"render_pdf"`
	SendEmail       bool `json:"send_email"`
	RecordIssueNote bool `json:"-"`
}

// Store is the invoice persistence slice the assembler uses.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	FindNumberByMeta(ctx context.Context, meta string) (string, error)
	ActiveNumberForAppointment(ctx context.Context, appointmentID int64) (string, error)
	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	MarkVoid(ctx context.Context, inv *Invoice, appointmentStatus string) error
}

// Counter hands out invoice ids and number sequences.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// PatientDirectory resolves patients for the billing contact snapshot.
type PatientDirectory interface {
	FindByID(ctx context.Context, patientID int64) (*patients.Patient, error)
}

// AppointmentDirectory resolves appointments for linkage checks.
type AppointmentDirectory interface {
	FindByID(ctx context.Context, appointmentID int64) (*appointments.Appointment, error)
}

// SettingsSource supplies the invoice prefix and defaults.
type SettingsSource interface {
	Latest(ctx context.Context) (*settings.Settings, error)
}

// NoteRecorder appends communication log entries.
type NoteRecorder interface {
	Record(ctx context.Context, e *communications.Entry) error
}

// Enqueuer schedules post-persist side effects. A nil enqueuer disables them.
type Enqueuer interface {
	EnqueueInvoiceEffects(ctx context.Context, invoiceNumber string, renderPDF, sendEmail bool) error
}

// Assembler builds invoices: validation, linkage checks, numbering, totals,
// contact snapshot, persistence, and side-effect scheduling.
type Assembler struct {
	store    Store
	counters Counter
	patients PatientDirectory
	appts    AppointmentDirectory
	settings SettingsSource
	notes    NoteRecorder
	effects  Enqueuer
	log      *logging.Logger
}

func NewAssembler(store Store, counters Counter, patientDir PatientDirectory,
	apptDir AppointmentDirectory, settingsSrc SettingsSource, notes NoteRecorder,
	effects Enqueuer, log *logging.Logger) *Assembler {
	return &Assembler{
		store:    store,
		counters: counters,
		patients: patientDir,
		appts:    apptDir,
		settings: settingsSrc,
		notes:    notes,
		effects:  effects,
		log:      log.Component("assembler"),
	}
}

// Assemble validates the draft, assigns an id and number, computes totals,
// snapshots the billing contact, and persists everything in one transaction.
// Duplicate meta fingerprints surface as billing.AlreadyExists carrying the
// existing invoice's number; invalid appointment links as conflicts.
func (a *Assembler) Assemble(ctx context.Context, draft Draft) (*Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	patient, err := a.patients.FindByID(ctx, draft.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, billing.NotFoundf("patient %d not found", draft.PatientID)
	}

	// Fingerprint check first: a re-issue must report AlreadyExists, not a
	// linkage conflict on its own earlier invoice.
	for _, l := range draft.Lines {
		if l.Meta == "" {
			continue
		}
		number, err := a.store.FindNumberByMeta(ctx, l.Meta)
		if err != nil {
			return nil, err
		}
		if number != "" {
			return nil, &billing.AlreadyExists{InvoiceNumber: number}
		}
	}

	if err := a.checkLinks(ctx, draft.AppointmentIDs); err != nil {
		return nil, err
	}

	cfg, err := a.settings.Latest(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := a.build(ctx, draft, patient, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, inv); err != nil {
		return nil, err
	}
	a.log.Info("invoice assembled",
		"invoice_number", inv.InvoiceNumber, "patient_id", inv.PatientID,
		"gross_pence", int64(inv.Gross), "status", inv.Status)

	a.postPersist(ctx, draft, patient, inv)
	return inv, nil
}

func validateDraft(draft Draft) error {
	if draft.PatientID == 0 {
		return billing.Validationf("patient id required")
	}
	if len(draft.Lines) == 0 {
		return billing.Validationf("at least one line item required")
	}
	for i, l := range draft.Lines {
		switch {
		case l.Description == "":
			return billing.Validationf("line %d: description required", i+1)
		case l.Quantity <= 0:
			return billing.Validationf("line %d: quantity must be positive", i+1)
		case l.UnitPrice < 0:
			return billing.Validationf("line %d: unit price cannot be negative", i+1)
		case l.DiscountAmount < 0:
			return billing.Validationf("line %d: discount cannot be negative", i+1)
		case l.TaxRateBP < 0:
			return billing.Validationf("line %d: tax rate cannot be negative", i+1)
		}
	}
	if draft.Discount < 0 {
		return billing.Validationf("invoice discount cannot be negative")
	}
	if draft.IssueDate.IsZero() {
		return billing.Validationf("issue date required")
	}
	return nil
}

func (a *Assembler) checkLinks(ctx context.Context, appointmentIDs []int64) error {
	for _, id := range appointmentIDs {
		appt, err := a.appts.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if appt == nil {
			return billing.Validationf("appointment %d not found", id)
		}
		if appt.PaymentStatus != appointments.PayPending && appt.PaymentStatus != appointments.PayPartial {
			return billing.Conflictf("appointment %d has payment status %s", id, appt.PaymentStatus)
		}
		number, err := a.store.ActiveNumberForAppointment(ctx, id)
		if err != nil {
			return err
		}
		if number != "" {
			return billing.Conflictf("appointment %d already on invoice %s", id, number)
		}
	}
	return nil
}

func (a *Assembler) build(ctx context.Context, draft Draft, patient *patients.Patient, cfg *settings.Settings) (*Invoice, error) {
	invoiceID, err := a.counters.Next(ctx, counters.SeqInvoice)
	if err != nil {
		return nil, err
	}
	seq, err := a.counters.Next(ctx, counters.SeqInvoiceNumber)
	if err != nil {
		return nil, err
	}
	number := fmt.Sprintf("%s-%d-%04d", cfg.InvoicePrefix, draft.IssueDate.Year(), seq)

	lines := make([]LineItem, len(draft.Lines))
	for i, l := range draft.Lines {
		lines[i] = LineItem{
			LineID:         uuid.NewString(),
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			TaxRateBP:      l.TaxRateBP,
			Meta:           l.Meta,
		}
	}
	totals := ComputeTotals(lines, draft.Discount)

	dueDate := draft.DueDate
	if dueDate.IsZero() {
		dueDate = draft.IssueDate
	}
	contact := patient.BillingContact()

	inv := &Invoice{
		InvoiceID:      invoiceID,
		InvoiceNumber:  number,
		PatientID:      patient.PatientID,
		Status:         StatusSent,
		IssueDate:      draft.IssueDate,
		DueDate:        dueDate,
		Lines:          lines,
		AppointmentIDs: draft.AppointmentIDs,
		Discount:       draft.Discount,
		Subtotal:       totals.Subtotal,
		TaxTotal:       totals.TaxTotal,
		DiscountTotal:  totals.DiscountTotal,
		Gross:          totals.Gross,
		Balance:        totals.Gross,
		BillingName:    contact.Name,
		BillingEmail:   contact.Email,
		BillingPhone:   contact.Phone,
		EmailLogStatus: EmailNotSent,
	}
	switch {
	case draft.AsDraft:
		inv.Status = StatusDraft
	case totals.Gross == 0:
		now := time.Now().UTC()
		inv.Status = StatusPaid
		inv.PaidAt = &now
	}
	return inv, nil
}

// postPersist runs the retriable tail: issue note and effect enqueue.
// Failures here never roll back the persisted invoice.
func (a *Assembler) postPersist(ctx context.Context, draft Draft, patient *patients.Patient, inv *Invoice) {
	if draft.RecordIssueNote && a.notes != nil {
		content := fmt.Sprintf("Invoice %s issued for %s", inv.InvoiceNumber, inv.Gross.Format())
		err := a.notes.Record(ctx, communications.Note(inv.PatientID, "Invoice issued", content,
			communications.Metadata{InvoiceNumber: inv.InvoiceNumber, Source: "assembler"}))
		if err != nil {
			a.log.Error("failed to record issue note", "invoice_number", inv.InvoiceNumber, "error", err)
		}
	}

	if a.effects == nil || inv.Status == StatusDraft {
		return
	}
	sendEmail := draft.SendEmail && patient.EmailActive &&
		patient.BillingMode != patients.BillingMonthly && inv.BillingEmail != ""
	if !draft.RenderPDF && !sendEmail {
		return
	}
	if err := a.effects.EnqueueInvoiceEffects(ctx, inv.InvoiceNumber, draft.RenderPDF, sendEmail); err != nil {
		a.log.Error("failed to enqueue invoice effects", "invoice_number", inv.InvoiceNumber, "error", err)
	}
}

// InvoiceAppointment bills a single appointment outcome. It satisfies
// appointments.Biller.
func (a *Assembler) InvoiceAppointment(ctx context.Context, d appointments.InvoiceDraft) (string, error) {
	inv, err := a.Assemble(ctx, Draft{
		PatientID: d.PatientID,
		Lines: []LineDraft{{
			Description: d.Description,
			Quantity:    1,
			UnitPrice:   d.Amount,
			Meta:        d.Meta,
		}},
		AppointmentIDs: []int64{d.AppointmentID},
		IssueDate:      d.IssueDate,
		DueDate:        d.IssueDate.AddDate(0, 0, 14),
		RenderPDF:      true,
		SendEmail:      true,
	})
	if err != nil {
		return "", err
	}
	return inv.InvoiceNumber, nil
}

// Void transitions an invoice to void. Paid invoices cannot be voided;
// voiding an already-void invoice is a no-op. Linked appointments revert to
// pending when no payments were applied, else cancelled.
func (a *Assembler) Void(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	inv, err := a.store.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, billing.NotFoundf("invoice %s not found", invoiceNumber)
	}
	switch inv.Status {
	case StatusVoid:
		return inv, nil
	case StatusPaid:
		return nil, billing.Conflictf("invoice %s is paid and cannot be voided", invoiceNumber)
	}

	apptStatus := appointments.PayPending
	if inv.TotalPaid > 0 {
		apptStatus = appointments.PayCancelled
	}
	if err := a.store.MarkVoid(ctx, inv, apptStatus); err != nil {
		return nil, err
	}
	a.log.Info("invoice voided", "invoice_number", invoiceNumber, "appointment_status", apptStatus)
	return inv, nil
}
