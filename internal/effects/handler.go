package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/communications"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/notify"
	"github.com/bridgesphysio/clinic-portal/internal/pdfrender"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// InvoiceSource is the slice of the invoice repository the handler needs.
type InvoiceSource interface {
	FindByNumber(ctx context.Context, number string) (*invoices.Invoice, error)
	SetPDF(ctx context.Context, number, path string, at time.Time) error
	SetEmailLog(ctx context.Context, number, status string, sentAt *time.Time) error
}

// Renderer renders and stores invoice PDFs.
type Renderer interface {
	RenderAndStore(ctx context.Context, snap pdfrender.Snapshot) (data []byte, path string, err error)
}

// SettingsSource supplies branding for rendered documents.
type SettingsSource interface {
	Latest(ctx context.Context) (*settings.Settings, error)
}

// CommLog records communication entries for email attempts.
type CommLog interface {
	Record(ctx context.Context, e *communications.Entry) error
}

// InvoiceEffectHandler executes invoice.render_pdf and invoice.send_email
// effects.
type InvoiceEffectHandler struct {
	invoices InvoiceSource
	renderer Renderer
	sender   notify.EmailSender
	settings SettingsSource
	comms    CommLog
	log      *logging.Logger
}

func NewInvoiceEffectHandler(invoiceSrc InvoiceSource, renderer Renderer, sender notify.EmailSender,
	settingsSrc SettingsSource, comms CommLog, log *logging.Logger) *InvoiceEffectHandler {
	return &InvoiceEffectHandler{
		invoices: invoiceSrc,
		renderer: renderer,
		sender:   sender,
		settings: settingsSrc,
		comms:    comms,
		log:      log.Component("effects"),
	}
}

// Handle dispatches one effect. A returned error leaves the entry pending
// for retry; terminal failures are logged and swallowed so the entry is
// marked delivered.
func (h *InvoiceEffectHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	var payload InvoicePayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		h.log.Error("undecodable effect payload, dropping", "effect_id", entry.ID, "error", err)
		return nil
	}
	inv, err := h.invoices.FindByNumber(ctx, payload.InvoiceNumber)
	if err != nil {
		return err
	}
	if inv == nil || inv.Status == invoices.StatusVoid {
		h.log.Info("effect target gone or void, dropping",
			"invoice_number", payload.InvoiceNumber, "type", entry.Type)
		return nil
	}

	switch entry.Type {
	case TypeRenderPDF:
		return h.renderPDF(ctx, inv)
	case TypeSendEmail:
		return h.sendEmail(ctx, inv)
	default:
		h.log.Error("unknown effect type, dropping", "type", entry.Type)
		return nil
	}
}

func (h *InvoiceEffectHandler) snapshot(ctx context.Context, inv *invoices.Invoice) (pdfrender.Snapshot, error) {
	cfg, err := h.settings.Latest(ctx)
	if err != nil {
		return pdfrender.Snapshot{}, err
	}
	return pdfrender.Snapshot{
		Invoice:             inv,
		Branding:            cfg.Branding,
		PaymentInstructions: cfg.PaymentInstructions,
		Currency:            cfg.Currency,
	}, nil
}

func (h *InvoiceEffectHandler) renderPDF(ctx context.Context, inv *invoices.Invoice) error {
	snap, err := h.snapshot(ctx, inv)
	if err != nil {
		return err
	}
	_, path, err := h.renderer.RenderAndStore(ctx, snap)
	if err != nil {
		if billing.IsRetriable(err) {
			return err
		}
		h.log.Error("terminal render failure, dropping effect",
			"invoice_number", inv.InvoiceNumber, "error", err)
		return nil
	}
	if path == "" {
		return nil
	}
	return h.invoices.SetPDF(ctx, inv.InvoiceNumber, path, time.Now().UTC())
}

func (h *InvoiceEffectHandler) sendEmail(ctx context.Context, inv *invoices.Invoice) error {
	if inv.EmailLogStatus == invoices.EmailSent {
		return nil
	}
	if inv.BillingEmail == "" {
		h.log.Info("no billing email, dropping send effect", "invoice_number", inv.InvoiceNumber)
		return nil
	}
	snap, err := h.snapshot(ctx, inv)
	if err != nil {
		return err
	}

	msg := notify.EmailMessage{
		To:      inv.BillingEmail,
		ToName:  inv.BillingName,
		Subject: fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, snap.Branding.ClinicName),
		Body: fmt.Sprintf("Invoice %s for %s is due by %s.\n\n%s",
			inv.InvoiceNumber, inv.Gross.Format(), inv.DueDate.Format("02/01/2006"),
			snap.PaymentInstructions),
	}
	// Attach a fresh render when possible; the email still goes out without
	// one.
	if data, _, err := h.renderer.RenderAndStore(ctx, snap); err == nil {
		msg.Attachments = append(msg.Attachments, notify.Attachment{
			Filename:    inv.InvoiceNumber + ".pdf",
			ContentType: "application/pdf",
			Content:     data,
		})
	} else {
		h.log.Error("render for attachment failed, sending without",
			"invoice_number", inv.InvoiceNumber, "error", err)
	}

	result := h.sender.Send(ctx, msg)

	status := communications.DeliverySent
	logStatus := invoices.EmailSent
	var sentAt *time.Time
	if result.Status == notify.StatusSent {
		now := time.Now().UTC()
		sentAt = &now
	} else {
		status = communications.DeliveryFailed
		logStatus = invoices.EmailFailed
	}

	meta, _ := json.Marshal(communications.Metadata{
		InvoiceNumber:     inv.InvoiceNumber,
		ProviderMessageID: result.MessageID,
		Error:             result.Error,
		Source:            "effects",
	})
	entry := &communications.Entry{
		PatientID:      inv.PatientID,
		Type:           communications.TypeEmail,
		Subject:        msg.Subject,
		Content:        msg.Body,
		DeliveryStatus: status,
		Metadata:       meta,
	}
	if err := h.comms.Record(ctx, entry); err != nil {
		h.log.Error("failed to record email communication",
			"invoice_number", inv.InvoiceNumber, "error", err)
	}
	if err := h.invoices.SetEmailLog(ctx, inv.InvoiceNumber, logStatus, sentAt); err != nil {
		return err
	}
	if result.Status != notify.StatusSent {
		return fmt.Errorf("effects: email send failed: %s", result.Error)
	}
	return nil
}
