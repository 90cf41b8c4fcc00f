// Package communications records every patient-facing communication attempt
// and billing note as an immutable log entry.
package communications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/counters"
)

// Entry types.
const (
	TypeEmail = "email"
	TypeNote  = "note"
)

// Delivery statuses.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// Entry is one communication log record.
type Entry struct {
	CommunicationID int64           `json:"communication_id"`
	PatientID       int64           `json:"patient_id"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Content         string          `json:"content"`
	DeliveryStatus  string          `json:"delivery_status"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Metadata carries provider details for email entries.
type Metadata struct {
	InvoiceNumber     string `json:"invoice_number,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
	Source            string `json:"source,omitempty"`
}

// Counter allocates communication ids.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// DBTX is satisfied by *sql.DB and *sql.Tx so entries can be appended inside
// a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository appends and updates communication log entries.
type Repository struct {
	db       *sql.DB
	counters Counter
}

func NewRepository(db *sql.DB, counters Counter) *Repository {
	return &Repository{db: db, counters: counters}
}

// Record appends an entry using the repository's own connection.
func (r *Repository) Record(ctx context.Context, e *Entry) error {
	return r.RecordTx(ctx, r.db, e)
}

// RecordTx appends an entry on the given transaction handle. The
// communication id is allocated before the write; gaps after rollbacks are
// tolerated.
func (r *Repository) RecordTx(ctx context.Context, tx DBTX, e *Entry) error {
	if e.CommunicationID == 0 {
		id, err := r.counters.Next(ctx, counters.SeqCommunication)
		if err != nil {
			return err
		}
		e.CommunicationID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.DeliveryStatus == "" {
		e.DeliveryStatus = DeliveryPending
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO communications (communication_id, patient_id, type, subject, content, delivery_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.CommunicationID, e.PatientID, e.Type, nullString(e.Subject), e.Content,
		e.DeliveryStatus, nullJSON(e.Metadata), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("communications: record entry: %w", err)
	}
	return nil
}

// MarkDelivery updates the delivery outcome of an email entry after the
// gateway responds.
func (r *Repository) MarkDelivery(ctx context.Context, communicationID int64, status string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("communications: marshal metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE communications SET delivery_status = $2, metadata = $3
		WHERE communication_id = $1`, communicationID, status, data)
	if err != nil {
		return fmt.Errorf("communications: mark delivery: %w", err)
	}
	return nil
}

// Note builds a note entry for a patient.
func Note(patientID int64, subject, content string, meta Metadata) *Entry {
	data, _ := json.Marshal(meta)
	return &Entry{
		PatientID:      patientID,
		Type:           TypeNote,
		Subject:        subject,
		Content:        content,
		DeliveryStatus: DeliverySent,
		Metadata:       data,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
