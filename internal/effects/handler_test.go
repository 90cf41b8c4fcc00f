package effects

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/communications"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/notify"
	"github.com/bridgesphysio/clinic-portal/internal/pdfrender"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

type fakeInvoiceSource struct {
	inv         *invoices.Invoice
	pdfPath     string
	emailStatus string
}

func (f *fakeInvoiceSource) FindByNumber(ctx context.Context, number string) (*invoices.Invoice, error) {
	if f.inv != nil && f.inv.InvoiceNumber == number {
		return f.inv, nil
	}
	return nil, nil
}

func (f *fakeInvoiceSource) SetPDF(ctx context.Context, number, path string, at time.Time) error {
	f.pdfPath = path
	return nil
}

func (f *fakeInvoiceSource) SetEmailLog(ctx context.Context, number, status string, sentAt *time.Time) error {
	f.emailStatus = status
	return nil
}

type fakeRenderer struct {
	data []byte
	path string
	err  error
}

func (f *fakeRenderer) RenderAndStore(ctx context.Context, snap pdfrender.Snapshot) ([]byte, string, error) {
	return f.data, f.path, f.err
}

type fakeSettings struct{}

func (fakeSettings) Latest(ctx context.Context) (*settings.Settings, error) {
	return settings.Defaults(), nil
}

type fakeCommLog struct{ entries []*communications.Entry }

func (f *fakeCommLog) Record(ctx context.Context, e *communications.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func invoiceFixture() *invoices.Invoice {
	return &invoices.Invoice{
		InvoiceID:      1,
		InvoiceNumber:  "INV-2025-0001",
		PatientID:      42,
		Status:         invoices.StatusSent,
		Gross:          6000,
		Balance:        6000,
		BillingName:    "Jane Doe",
		BillingEmail:   "jane@example.com",
		EmailLogStatus: invoices.EmailNotSent,
		DueDate:        time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC),
	}
}

func entryFor(effectType, number string) OutboxEntry {
	payload, _ := json.Marshal(InvoicePayload{InvoiceNumber: number})
	return OutboxEntry{Type: effectType, Payload: payload}
}

func newHandler(src *fakeInvoiceSource, r *fakeRenderer, sender notify.EmailSender, comms *fakeCommLog) *InvoiceEffectHandler {
	return NewInvoiceEffectHandler(src, r, sender, fakeSettings{}, comms, logging.Default())
}

func TestHandleRenderStoresPDFPath(t *testing.T) {
	src := &fakeInvoiceSource{inv: invoiceFixture()}
	h := newHandler(src, &fakeRenderer{data: []byte("%PDF-1.4"), path: "/pdfs/INV-2025-0001.pdf"},
		notify.NewStubEmailSender(nil), &fakeCommLog{})

	if err := h.Handle(context.Background(), entryFor(TypeRenderPDF, "INV-2025-0001")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if src.pdfPath != "/pdfs/INV-2025-0001.pdf" {
		t.Errorf("pdf path not recorded: %q", src.pdfPath)
	}
}

func TestHandleRenderRetriableFailureStaysPending(t *testing.T) {
	src := &fakeInvoiceSource{inv: invoiceFixture()}
	h := newHandler(src, &fakeRenderer{err: billing.Collaborator(errors.New("down"), true, "sidecar down")},
		notify.NewStubEmailSender(nil), &fakeCommLog{})

	if err := h.Handle(context.Background(), entryFor(TypeRenderPDF, "INV-2025-0001")); err == nil {
		t.Fatal("retriable failure must return an error so the entry is retried")
	}
}

func TestHandleRenderTerminalFailureDropped(t *testing.T) {
	src := &fakeInvoiceSource{inv: invoiceFixture()}
	h := newHandler(src, &fakeRenderer{err: billing.Collaborator(nil, false, "non-PDF output")},
		notify.NewStubEmailSender(nil), &fakeCommLog{})

	if err := h.Handle(context.Background(), entryFor(TypeRenderPDF, "INV-2025-0001")); err != nil {
		t.Fatalf("terminal failure must be dropped, got %v", err)
	}
	if src.pdfPath != "" {
		t.Error("non-PDF output must never be persisted")
	}
}

func TestHandleSendEmail(t *testing.T) {
	src := &fakeInvoiceSource{inv: invoiceFixture()}
	sender := notify.NewStubEmailSender(nil)
	comms := &fakeCommLog{}
	h := newHandler(src, &fakeRenderer{data: []byte("%PDF-1.4")}, sender, comms)

	if err := h.Handle(context.Background(), entryFor(TypeSendEmail, "INV-2025-0001")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.Sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.Sent))
	}
	if len(sender.Sent[0].Attachments) != 1 {
		t.Error("expected the rendered PDF attached")
	}
	if src.emailStatus != invoices.EmailSent {
		t.Errorf("email log not updated: %q", src.emailStatus)
	}
	if len(comms.entries) != 1 || comms.entries[0].Type != communications.TypeEmail {
		t.Errorf("expected one email communication entry, got %+v", comms.entries)
	}
	if comms.entries[0].DeliveryStatus != communications.DeliverySent {
		t.Errorf("unexpected delivery status %s", comms.entries[0].DeliveryStatus)
	}
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, msg notify.EmailMessage) notify.SendResult {
	return notify.SendResult{Status: notify.StatusFailed, Error: "provider rejected"}
}

func TestHandleSendEmailFailureRecordedAndRetried(t *testing.T) {
	src := &fakeInvoiceSource{inv: invoiceFixture()}
	comms := &fakeCommLog{}
	h := newHandler(src, &fakeRenderer{data: []byte("%PDF-1.4")}, failingSender{}, comms)

	err := h.Handle(context.Background(), entryFor(TypeSendEmail, "INV-2025-0001"))
	if err == nil {
		t.Fatal("failed send must return an error for retry")
	}
	if src.emailStatus != invoices.EmailFailed {
		t.Errorf("email log should record the failure: %q", src.emailStatus)
	}
	if len(comms.entries) != 1 || comms.entries[0].DeliveryStatus != communications.DeliveryFailed {
		t.Errorf("expected failed communication entry, got %+v", comms.entries)
	}
}

func TestHandleSkipsVoidInvoice(t *testing.T) {
	inv := invoiceFixture()
	inv.Status = invoices.StatusVoid
	src := &fakeInvoiceSource{inv: inv}
	sender := notify.NewStubEmailSender(nil)
	h := newHandler(src, &fakeRenderer{data: []byte("%PDF-1.4")}, sender, &fakeCommLog{})

	if err := h.Handle(context.Background(), entryFor(TypeSendEmail, "INV-2025-0001")); err != nil {
		t.Fatal(err)
	}
	if len(sender.Sent) != 0 {
		t.Error("void invoices must not be emailed")
	}
}

func TestHandleSkipsAlreadySentEmail(t *testing.T) {
	inv := invoiceFixture()
	inv.EmailLogStatus = invoices.EmailSent
	src := &fakeInvoiceSource{inv: inv}
	sender := notify.NewStubEmailSender(nil)
	h := newHandler(src, &fakeRenderer{data: []byte("%PDF-1.4")}, sender, &fakeCommLog{})

	if err := h.Handle(context.Background(), entryFor(TypeSendEmail, "INV-2025-0001")); err != nil {
		t.Fatal(err)
	}
	if len(sender.Sent) != 0 {
		t.Error("already-sent invoices must not be re-emailed")
	}
}

func TestHandleUnknownInvoiceDropped(t *testing.T) {
	src := &fakeInvoiceSource{}
	h := newHandler(src, &fakeRenderer{}, notify.NewStubEmailSender(nil), &fakeCommLog{})
	if err := h.Handle(context.Background(), entryFor(TypeRenderPDF, "INV-9999-0000")); err != nil {
		t.Fatalf("unknown invoice must be dropped, got %v", err)
	}
}
