// Package effects implements the transactional outbox for invoice side
// effects: PDF rendering and email dispatch. A failed side effect never
// rolls back a persisted invoice; it stays pending and is retried.
package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Effect types.
const (
	TypeRenderPDF = "invoice.render_pdf"
	TypeSendEmail = "invoice.send_email"
)

// OutboxEntry represents a pending effect.
type OutboxEntry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// InvoicePayload is the payload of both invoice effect types.
type InvoicePayload struct {
	InvoiceNumber string `json:"invoice_number"`
}

// DeliveryHandler executes one effect.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists effects for reliable delivery.
type OutboxStore struct {
	db pgxIface
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("effects: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithDB(db pgxIface) *OutboxStore {
	return &OutboxStore{db: db}
}

// Insert enqueues one effect.
func (s *OutboxStore) Insert(ctx context.Context, effectType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("effects: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO effects_outbox (id, type, payload)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.Exec(ctx, query, id, effectType, data); err != nil {
		return uuid.Nil, fmt.Errorf("effects: insert outbox: %w", err)
	}
	return id, nil
}

// EnqueueInvoiceEffects enqueues the requested effects for an issued
// invoice. Render comes before send so the email can attach the stored PDF.
func (s *OutboxStore) EnqueueInvoiceEffects(ctx context.Context, invoiceNumber string, renderPDF, sendEmail bool) error {
	payload := InvoicePayload{InvoiceNumber: invoiceNumber}
	if renderPDF {
		if _, err := s.Insert(ctx, TypeRenderPDF, payload); err != nil {
			return err
		}
	}
	if sendEmail {
		if _, err := s.Insert(ctx, TypeSendEmail, payload); err != nil {
			return err
		}
	}
	return nil
}

// FetchPending returns undelivered effects, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, type, payload, created_at
		FROM effects_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("effects: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("effects: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered stamps an effect as done.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE effects_outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("effects: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 20,
		interval:  5 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start blocks, draining the outbox on each tick until the context ends.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("effect delivery failed", "error", err, "effect_id", entry.ID, "type", entry.Type)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark effect delivered", "error", err, "effect_id", entry.ID)
		} else if ok {
			d.logger.Debug("effect delivered", "effect_id", entry.ID, "type", entry.Type)
		}
	}
}
