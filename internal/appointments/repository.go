package appointments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists appointments.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const appointmentColumns = `appointment_id, patient_id, therapist_id, type, date, price_pence,
	status, COALESCE(completion_status, ''), COALESCE(completion_note, ''), payment_status, created_at, updated_at`

// FindByID returns the appointment or nil when unknown.
func (r *Repository) FindByID(ctx context.Context, appointmentID int64) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE appointment_id = $1`, appointmentID)
	return scanAppointment(row)
}

// Create inserts an appointment with a pre-allocated id. Used by the
// importer, which builds historical appointments directly.
func (r *Repository) Create(ctx context.Context, tx DBTX, a *Appointment) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (appointment_id, patient_id, therapist_id, type, date, price_pence,
			status, completion_status, completion_note, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.AppointmentID, a.PatientID, a.TherapistID, a.Type, a.Date, int64(a.Price),
		a.Status, nullIfEmpty(a.CompletionStatus), nullIfEmpty(a.CompletionNote),
		a.PaymentStatus, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// RecordOutcome persists the outcome fields. An empty status leaves the
// current status untouched (the "other" outcome).
func (r *Repository) RecordOutcome(ctx context.Context, appointmentID int64, status, completionStatus, note string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = CASE WHEN $2 = '' THEN status ELSE $2 END,
		    completion_status = $3,
		    completion_note = NULLIF($4, ''),
		    updated_at = now()
		WHERE appointment_id = $1`,
		appointmentID, status, completionStatus, note)
	if err != nil {
		return fmt.Errorf("appointments: record outcome: %w", err)
	}
	return nil
}

// SetPaymentStatus updates payment_status for a batch of appointments, on the
// caller's transaction when given one.
func (r *Repository) SetPaymentStatus(ctx context.Context, tx DBTX, appointmentIDs []int64, status string) error {
	if len(appointmentIDs) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE appointments SET payment_status = $2, updated_at = now()
		WHERE appointment_id = ANY($1)`, pq.Array(appointmentIDs), status)
	if err != nil {
		return fmt.Errorf("appointments: set payment status: %w", err)
	}
	return nil
}

func scanAppointment(row *sql.Row) (*Appointment, error) {
	var a Appointment
	var price int64
	err := row.Scan(&a.AppointmentID, &a.PatientID, &a.TherapistID, &a.Type, &a.Date, &price,
		&a.Status, &a.CompletionStatus, &a.CompletionNote, &a.PaymentStatus, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Price = billing.Pence(price)
	return &a, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
