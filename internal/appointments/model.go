// Package appointments holds the appointment model and the outcome
// controller that decides what billing effects an outcome triggers.
package appointments

import (
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Completion statuses. Empty until an outcome is recorded.
const (
	CompletionCompleted          = "completed"
	CompletionCompletedManual    = "completed_manual"
	CompletionCancelledSameDay   = "cancelled_same_day"
	CompletionCancelledByPatient = "cancelled_by_patient"
	CompletionCancelledByTherapy = "cancelled_by_therapist"
	CompletionOther              = "other"
)

// Payment statuses.
const (
	PayPending   = "pending"
	PayPartial   = "partial"
	PayPaid      = "paid"
	PayCancelled = "cancelled"
	PayVoid      = "void"
)

// Appointment is one booked session.
type Appointment struct {
	AppointmentID    int64         `json:"appointment_id"`
	PatientID        int64         `json:"patient_id"`
	TherapistID      int64         `json:"therapist_id"`
	Type             string        `json:"type"`
	Date             time.Time     `json:"date"`
	Price            billing.Pence `json:"price_pence"`
	Status           string        `json:"status"`
	CompletionStatus string        `json:"completion_status,omitempty"`
	CompletionNote   string        `json:"completion_note,omitempty"`
	PaymentStatus    string        `json:"payment_status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
