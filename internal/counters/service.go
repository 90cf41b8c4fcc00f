// Package counters issues monotonic per-domain integer ids.
package counters

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequence names used by the billing engine.
const (
	SeqAppointment   = "appointment_id"
	SeqInvoice       = "invoice_id"
	SeqInvoiceNumber = "invoice_number"
	SeqPayment       = "payment_id"
	SeqExpense       = "expense_id"
	SeqCommunication = "communication_id"
)

// Querier is the subset of pgxpool.Pool the service needs. Satisfied by
// pgxmock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service hands out strictly increasing integers per named sequence. The
// single upsert-returning statement makes Next linearizable per name; gaps
// after failed transactions are tolerated.
type Service struct {
	db Querier
}

// New creates a counter service backed by pgx.
func New(pool *pgxpool.Pool) *Service {
	if pool == nil {
		panic("counters: pgx pool required")
	}
	return &Service{db: pool}
}

// NewWithQuerier allows injecting a mocked querier for tests.
func NewWithQuerier(q Querier) *Service {
	return &Service{db: q}
}

// Next returns the next value for the named sequence. The first value is 1.
func (s *Service) Next(ctx context.Context, name string) (int64, error) {
	return s.NextN(ctx, name, 1)
}

// NextN advances the named sequence by step and returns the new value.
func (s *Service) NextN(ctx context.Context, name string, step int64) (int64, error) {
	if step < 1 {
		return 0, fmt.Errorf("counters: step must be >= 1, got %d", step)
	}
	var value int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + $2, updated_at = now()
		RETURNING value`, name, step).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("counters: next %s: %w", name, err)
	}
	return value, nil
}
