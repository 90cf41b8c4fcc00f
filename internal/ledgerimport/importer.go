package ledgerimport

import (
	"context"
	"fmt"

	"github.com/bridgesphysio/clinic-portal/internal/appointments"
	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/patients"
	"github.com/bridgesphysio/clinic-portal/internal/payments"
	"github.com/bridgesphysio/clinic-portal/internal/users"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Row is one ledger row. Date and money fields carry whatever the source
// produced (strings from CSV, numbers from spreadsheets).
type Row struct {
	PatientName     string `json:"patient_name"`
	AppointmentType string `json:"appointment_type"`
	Date            any    `json:"date"`
	InvoiceAmount   any    `json:"invoice_amount"`
	Discount        any    `json:"discount"`
	Payment         any    `json:"payment"`
	PaymentType     string `json:"payment_type"`
}

// Job is an import request. SourceLabel namespaces the idempotency
// fingerprints so re-running the same file skips, while a different file
// with identical rows does not.
type Job struct {
	SourceLabel string `json:"source_label"`
	Rows        []Row  `json:"rows"`
}

// RowIssue describes a skipped or failed row.
type RowIssue struct {
	RowNumber   int    `json:"row_number"`
	PatientName string `json:"patient_name"`
	Reason      string `json:"reason"`
}

// Summary is the per-batch import report.
type Summary struct {
	Processed           int        `json:"processed"`
	AppointmentsCreated int        `json:"appointments_created"`
	InvoicesCreated     int        `json:"invoices_created"`
	PaymentsCreated     int        `json:"payments_created"`
	CreatedInvoices     []string   `json:"created_invoices"`
	Skipped             []RowIssue `json:"skipped"`
	Errors              []RowIssue `json:"errors"`
}

// PatientFinder resolves patients by normalised name keys.
type PatientFinder interface {
	FindByNameKeys(ctx context.Context, keys []string) (*patients.Patient, error)
}

// TherapistSource supplies the default therapist for historical rows.
type TherapistSource interface {
	FirstTherapistWithEmployeeID(ctx context.Context) (*users.User, error)
}

// Counter allocates appointment ids.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// AppointmentCreator persists reconstructed appointments.
type AppointmentCreator interface {
	Create(ctx context.Context, tx appointments.DBTX, a *appointments.Appointment) error
}

// InvoiceAssembler builds the per-row invoice.
type InvoiceAssembler interface {
	Assemble(ctx context.Context, draft invoices.Draft) (*invoices.Invoice, error)
}

// MetaLookup checks fingerprints before any row writes happen.
type MetaLookup interface {
	FindNumberByMeta(ctx context.Context, meta string) (string, error)
}

// PaymentApplier records the row's historical payment.
type PaymentApplier interface {
	Apply(ctx context.Context, invoiceNumber string, in payments.Input) (*payments.Result, error)
}

// Importer runs ledger import jobs.
type Importer struct {
	patients   PatientFinder
	therapists TherapistSource
	counters   Counter
	appts      AppointmentCreator
	assembler  InvoiceAssembler
	metas      MetaLookup
	payments   PaymentApplier
	log        *logging.Logger
}

func NewImporter(patientDir PatientFinder, therapists TherapistSource, counters Counter,
	appts AppointmentCreator, assembler InvoiceAssembler, metas MetaLookup,
	applier PaymentApplier, log *logging.Logger) *Importer {
	return &Importer{
		patients:   patientDir,
		therapists: therapists,
		counters:   counters,
		appts:      appts,
		assembler:  assembler,
		metas:      metas,
		payments:   applier,
		log:        log.Component("ledgerimport"),
	}
}

// Run processes every row. Row failures are recorded on the summary and
// never abort the batch. Rows whose fingerprint already exists are skipped.
// No patient-facing email is sent and no PDF is rendered for imported rows.
func (im *Importer) Run(ctx context.Context, job Job) (*Summary, error) {
	if job.SourceLabel == "" {
		return nil, billing.Validationf("source label required")
	}

	therapistID := int64(0)
	if therapist, err := im.therapists.FirstTherapistWithEmployeeID(ctx); err != nil {
		return nil, err
	} else if therapist != nil {
		therapistID = therapist.UserID
	}

	summary := &Summary{}
	for i, row := range job.Rows {
		rowNumber := i + 2 // 1-based with a header row
		summary.Processed++
		im.runRow(ctx, job.SourceLabel, rowNumber, row, therapistID, summary)
	}
	im.log.Info("ledger import finished",
		"source", job.SourceLabel, "processed", summary.Processed,
		"invoices", summary.InvoicesCreated, "payments", summary.PaymentsCreated,
		"skipped", len(summary.Skipped), "errors", len(summary.Errors))
	return summary, nil
}

func (im *Importer) runRow(ctx context.Context, sourceLabel string, rowNumber int, row Row, therapistID int64, summary *Summary) {
	skip := func(reason string) {
		summary.Skipped = append(summary.Skipped, RowIssue{RowNumber: rowNumber, PatientName: row.PatientName, Reason: reason})
	}
	fail := func(reason string) {
		summary.Errors = append(summary.Errors, RowIssue{RowNumber: rowNumber, PatientName: row.PatientName, Reason: reason})
	}

	date, err := ParseRowDate(row.Date)
	if err != nil {
		skip("invalid date")
		return
	}
	invoiceAmount := ParseMoney(row.InvoiceAmount)
	discount := ParseMoney(row.Discount)
	payment := ParseMoney(row.Payment)

	first, surname := SplitName(row.PatientName)
	keys := patients.NameKeys(first, "", surname)
	if len(keys) == 0 {
		fail("empty patient name")
		return
	}
	patient, err := im.patients.FindByNameKeys(ctx, keys)
	if err != nil {
		fail(fmt.Sprintf("patient lookup: %v", err))
		return
	}
	if patient == nil {
		fail("patient not found")
		return
	}

	if discount < 0 {
		discount = 0
	}
	meta := fmt.Sprintf("import:%s:%d:%s:%s:%s:%s:%s",
		sourceLabel, patient.PatientID, date.Format("2006-01-02"), row.AppointmentType,
		invoiceAmount.Format(), discount.Format(), payment.Format())

	if number, err := im.metas.FindNumberByMeta(ctx, meta); err != nil {
		fail(fmt.Sprintf("fingerprint lookup: %v", err))
		return
	} else if number != "" {
		skip("already imported")
		return
	}

	unitPrice := invoiceAmount + discount
	lineDiscount := discount
	if lineDiscount > unitPrice {
		lineDiscount = unitPrice
	}

	appointmentID, err := im.counters.Next(ctx, counters.SeqAppointment)
	if err != nil {
		fail(fmt.Sprintf("allocate appointment id: %v", err))
		return
	}
	appt := &appointments.Appointment{
		AppointmentID:    appointmentID,
		PatientID:        patient.PatientID,
		TherapistID:      therapistID,
		Type:             row.AppointmentType,
		Date:             date,
		Price:            unitPrice,
		Status:           appointments.StatusCompleted,
		CompletionStatus: appointments.CompletionCompletedManual,
		PaymentStatus:    appointments.PayPending,
	}
	if err := im.appts.Create(ctx, nil, appt); err != nil {
		fail(fmt.Sprintf("create appointment: %v", err))
		return
	}
	summary.AppointmentsCreated++

	inv, err := im.assembler.Assemble(ctx, invoices.Draft{
		PatientID: patient.PatientID,
		Lines: []invoices.LineDraft{{
			Description:    row.AppointmentType,
			Quantity:       1,
			UnitPrice:      unitPrice,
			DiscountAmount: lineDiscount,
			Meta:           meta,
		}},
		AppointmentIDs:  []int64{appointmentID},
		IssueDate:       date,
		DueDate:         date,
		RecordIssueNote: true,
	})
	if err != nil {
		// A concurrent import won the fingerprint race.
		if _, ok := billing.AsAlreadyExists(err); ok {
			skip("already imported")
			return
		}
		fail(fmt.Sprintf("assemble invoice: %v", err))
		return
	}
	summary.InvoicesCreated++
	summary.CreatedInvoices = append(summary.CreatedInvoices, inv.InvoiceNumber)

	if payment > 0 {
		_, err := im.payments.Apply(ctx, inv.InvoiceNumber, payments.Input{
			Amount:    payment,
			Method:    MapMethod(row.PaymentType),
			Reference: meta,
			Date:      date,
		})
		if err != nil {
			fail(fmt.Sprintf("apply payment: %v", err))
			return
		}
		summary.PaymentsCreated++
	}
}
