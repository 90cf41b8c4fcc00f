package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bridgesphysio/clinic-portal/internal/appointments"
	"github.com/bridgesphysio/clinic-portal/internal/observability/metrics"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// OutcomeRecorder is the slice of the outcome controller the handler uses.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, appointmentID int64, outcome, note string) (*appointments.OutcomeResult, error)
}

// AppointmentsHandler serves appointment outcome endpoints.
type AppointmentsHandler struct {
	outcomes OutcomeRecorder
	metrics  *metrics.BillingMetrics
	logger   *logging.Logger
}

func NewAppointmentsHandler(outcomes OutcomeRecorder, m *metrics.BillingMetrics, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{outcomes: outcomes, metrics: m, logger: logger.Component("appointments_handler")}
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

// RecordOutcome handles POST /appointments/{id}/outcome.
func (h *AppointmentsHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid appointment id"})
		return
	}
	var req outcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.outcomes.RecordOutcome(r.Context(), id, req.Outcome, req.Note)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if result.InvoiceCreated {
		h.metrics.ObserveInvoiceIssued("outcome", "sent")
	}
	writeJSON(w, http.StatusOK, result)
}
