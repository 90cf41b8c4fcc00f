package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/observability/metrics"
	"github.com/bridgesphysio/clinic-portal/internal/payments"
	"github.com/bridgesphysio/clinic-portal/internal/pdfrender"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// InvoiceService assembles and voids invoices.
type InvoiceService interface {
	Assemble(ctx context.Context, draft invoices.Draft) (*invoices.Invoice, error)
	Void(ctx context.Context, invoiceNumber string) (*invoices.Invoice, error)
}

// InvoiceReader loads invoices by number.
type InvoiceReader interface {
	FindByNumber(ctx context.Context, number string) (*invoices.Invoice, error)
}

// PaymentApplier applies and lists payments for an invoice.
type PaymentApplier interface {
	Apply(ctx context.Context, invoiceNumber string, in payments.Input) (*payments.Result, error)
	ListForInvoice(ctx context.Context, invoiceNumber string) ([]payments.Payment, error)
}

// EffectEnqueuer schedules invoice side effects.
type EffectEnqueuer interface {
	EnqueueInvoiceEffects(ctx context.Context, invoiceNumber string, renderPDF, sendEmail bool) error
}

// PDFRenderer renders an invoice snapshot on demand.
type PDFRenderer interface {
	RenderAndStore(ctx context.Context, snap pdfrender.Snapshot) (data []byte, path string, err error)
}

// SettingsSource supplies branding for rendered documents.
type SettingsSource interface {
	Latest(ctx context.Context) (*settings.Settings, error)
}

// InvoicesHandler serves invoice lifecycle endpoints.
type InvoicesHandler struct {
	assembler InvoiceService
	store     InvoiceReader
	payments  PaymentApplier
	effects   EffectEnqueuer
	renderer  PDFRenderer
	settings  SettingsSource
	metrics   *metrics.BillingMetrics
	logger    *logging.Logger
}

func NewInvoicesHandler(assembler InvoiceService, store InvoiceReader, applier PaymentApplier,
	effects EffectEnqueuer, renderer PDFRenderer, settingsSrc SettingsSource,
	m *metrics.BillingMetrics, logger *logging.Logger) *InvoicesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &InvoicesHandler{
		assembler: assembler,
		store:     store,
		payments:  applier,
		effects:   effects,
		renderer:  renderer,
		settings:  settingsSrc,
		metrics:   m,
		logger:    logger.Component("invoices_handler"),
	}
}

// Create handles POST /invoices.
func (h *InvoicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft invoices.Draft
	if !decodeJSON(w, r, &draft) {
		return
	}
	draft.RecordIssueNote = true

	inv, err := h.assembler.Assemble(r.Context(), draft)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.metrics.ObserveInvoiceIssued("api", inv.Status)
	writeJSON(w, http.StatusCreated, inv)
}

// Get handles GET /invoices/{number}.
func (h *InvoicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.store.FindByNumber(r.Context(), number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if inv == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("invoice %s not found", number)})
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Void handles POST /invoices/{number}/void.
func (h *InvoicesHandler) Void(w http.ResponseWriter, r *http.Request) {
	inv, err := h.assembler.Void(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// ApplyPayment handles POST /invoices/{number}/payments.
func (h *InvoicesHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var in payments.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.payments.Apply(r.Context(), chi.URLParam(r, "number"), in)
	if err != nil {
		h.metrics.ObservePaymentApplied(in.Method, "rejected")
		writeError(w, h.logger, err)
		return
	}
	h.metrics.ObservePaymentApplied(in.Method, result.InvoiceStatus)
	writeJSON(w, http.StatusCreated, result)
}

// ListPayments handles GET /invoices/{number}/payments.
func (h *InvoicesHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.ListForInvoice(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": list})
}

// SendEmail handles POST /invoices/{number}/email. The send itself runs
// through the outbox so a gateway outage never fails the request.
func (h *InvoicesHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.store.FindByNumber(r.Context(), number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if inv == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("invoice %s not found", number)})
		return
	}
	if inv.Status == invoices.StatusVoid {
		writeJSON(w, http.StatusConflict, errorResponse{Error: fmt.Sprintf("invoice %s is void", number)})
		return
	}
	if inv.BillingEmail == "" {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "invoice has no billing email"})
		return
	}
	if err := h.effects.EnqueueInvoiceEffects(r.Context(), number, inv.PDFPath == "", true); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "invoice_number": number})
}

// PDF handles GET /invoices/{number}/pdf: renders the invoice on demand and
// streams the bytes.
func (h *InvoicesHandler) PDF(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.store.FindByNumber(r.Context(), number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if inv == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("invoice %s not found", number)})
		return
	}

	cfg, err := h.settings.Latest(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	data, _, err := h.renderer.RenderAndStore(r.Context(), pdfrender.Snapshot{
		Invoice:             inv,
		Branding:            cfg.Branding,
		PaymentInstructions: cfg.PaymentInstructions,
		Currency:            cfg.Currency,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
