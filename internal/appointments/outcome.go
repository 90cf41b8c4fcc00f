package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/communications"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Outcome values accepted by RecordOutcome.
const (
	OutcomeCompleted          = "completed"
	OutcomeCompletedManual    = "completed_manual"
	OutcomeCancelledSameDay   = "cancelled_same_day"
	OutcomeCancelledByPatient = "cancelled_by_patient"
	OutcomeCancelledByTherapy = "cancelled_by_therapist"
	OutcomeOther              = "other"
)

// InvoiceDraft is the controller's request to bill one appointment.
type InvoiceDraft struct {
	PatientID     int64
	AppointmentID int64
	Description   string
	Amount        billing.Pence
	Meta          string
	IssueDate     time.Time
}

// Biller creates an invoice for a billable outcome. Implementations return
// billing.AlreadyExists when the meta fingerprint has been billed before.
type Biller interface {
	InvoiceAppointment(ctx context.Context, draft InvoiceDraft) (invoiceNumber string, err error)
}

// Store is the slice of the appointment repository the controller uses.
type Store interface {
	FindByID(ctx context.Context, appointmentID int64) (*Appointment, error)
	RecordOutcome(ctx context.Context, appointmentID int64, status, completionStatus, note string) error
}

// NoteRecorder appends communication log entries.
type NoteRecorder interface {
	Record(ctx context.Context, e *communications.Entry) error
}

// Controller records appointment outcomes and fires billing effects.
type Controller struct {
	store  Store
	biller Biller
	notes  NoteRecorder
	log    *logging.Logger
}

func NewController(store Store, biller Biller, notes NoteRecorder, log *logging.Logger) *Controller {
	return &Controller{store: store, biller: biller, notes: notes, log: log.Component("outcome")}
}

// OutcomeResult reports what RecordOutcome did.
type OutcomeResult struct {
	Appointment    *Appointment `json:"appointment"`
	InvoiceNumber  string       `json:"invoice_number,omitempty"`
	InvoiceCreated bool         `json:"invoice_created"`
}

// RecordOutcome updates the appointment's disposition and, for billable
// outcomes, asks the assembler for an invoice. Re-issuing the same outcome is
// idempotent: the existing invoice number is returned without a new invoice.
func (c *Controller) RecordOutcome(ctx context.Context, appointmentID int64, outcome, note string) (*OutcomeResult, error) {
	appt, err := c.store.FindByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, billing.Validationf("unknown appointment %d", appointmentID)
	}
	if appt.PaymentStatus == PayVoid {
		return nil, billing.Validationf("appointment %d is linked to a void invoice", appointmentID)
	}

	var status, completionStatus string
	var billAmount billing.Pence
	autoInvoice := false
	billable := false

	switch outcome {
	case OutcomeCompleted:
		status, completionStatus = StatusCompleted, CompletionCompleted
		billAmount, autoInvoice, billable = appt.Price, true, true
	case OutcomeCompletedManual:
		status, completionStatus = StatusCompleted, CompletionCompletedManual
		billable = true
	case OutcomeCancelledSameDay:
		status, completionStatus = StatusCancelled, CompletionCancelledSameDay
		billAmount, autoInvoice, billable = appt.Price.Half(), true, true
	case OutcomeCancelledByPatient:
		status, completionStatus = StatusCancelled, CompletionCancelledByPatient
	case OutcomeCancelledByTherapy:
		status, completionStatus = StatusCancelled, CompletionCancelledByTherapy
	case OutcomeOther:
		if note == "" {
			return nil, billing.Validationf("outcome 'other' requires a note")
		}
		completionStatus = CompletionOther
	default:
		return nil, billing.Validationf("unknown outcome %q", outcome)
	}

	if err := c.store.RecordOutcome(ctx, appointmentID, status, completionStatus, note); err != nil {
		return nil, err
	}
	appt.CompletionStatus = completionStatus
	appt.CompletionNote = note
	if status != "" {
		appt.Status = status
	}

	result := &OutcomeResult{Appointment: appt}

	if autoInvoice {
		number, created, err := c.invoice(ctx, appt, billAmount, completionStatus)
		if err != nil {
			return nil, err
		}
		result.InvoiceNumber = number
		result.InvoiceCreated = created
	}

	if billable {
		c.recordNote(ctx, appt, completionStatus, result)
	}
	return result, nil
}

func (c *Controller) invoice(ctx context.Context, appt *Appointment, amount billing.Pence, completionStatus string) (string, bool, error) {
	desc := fmt.Sprintf("%s on %s", appt.Type, appt.Date.Format("02/01/2006"))
	if completionStatus == CompletionCancelledSameDay {
		desc = fmt.Sprintf("Same-day cancellation fee: %s", desc)
	}
	number, err := c.biller.InvoiceAppointment(ctx, InvoiceDraft{
		PatientID:     appt.PatientID,
		AppointmentID: appt.AppointmentID,
		Description:   desc,
		Amount:        amount,
		Meta:          fmt.Sprintf("outcome:%d:%s", appt.AppointmentID, completionStatus),
		IssueDate:     time.Now().UTC(),
	})
	if err != nil {
		if ae, ok := billing.AsAlreadyExists(err); ok {
			c.log.Info("outcome already invoiced",
				"appointment_id", appt.AppointmentID, "invoice_number", ae.InvoiceNumber)
			return ae.InvoiceNumber, false, nil
		}
		return "", false, err
	}
	return number, true, nil
}

// recordNote appends the billing note. Log failures are logged, not fatal:
// the outcome and invoice are already durable.
func (c *Controller) recordNote(ctx context.Context, appt *Appointment, completionStatus string, result *OutcomeResult) {
	content := fmt.Sprintf("Appointment on %s recorded as %s",
		appt.Date.Format("02/01/2006"), completionStatus)
	if result.InvoiceNumber != "" {
		content += fmt.Sprintf("; invoice %s", result.InvoiceNumber)
	}
	err := c.notes.Record(ctx, communications.Note(appt.PatientID, "Billing note", content,
		communications.Metadata{InvoiceNumber: result.InvoiceNumber, Source: "outcome"}))
	if err != nil {
		c.log.Error("failed to record outcome note",
			"appointment_id", appt.AppointmentID, "error", err)
	}
}
