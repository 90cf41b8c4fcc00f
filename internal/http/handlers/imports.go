package handlers

import (
	"context"
	"net/http"

	"github.com/bridgesphysio/clinic-portal/internal/ledgerimport"
	"github.com/bridgesphysio/clinic-portal/internal/observability/metrics"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// ImportRunner runs ledger import jobs.
type ImportRunner interface {
	Run(ctx context.Context, job ledgerimport.Job) (*ledgerimport.Summary, error)
}

// ImportsHandler serves the legacy ledger import endpoint.
type ImportsHandler struct {
	importer ImportRunner
	metrics  *metrics.BillingMetrics
	logger   *logging.Logger
}

func NewImportsHandler(importer ImportRunner, m *metrics.BillingMetrics, logger *logging.Logger) *ImportsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ImportsHandler{importer: importer, metrics: m, logger: logger.Component("imports_handler")}
}

// RunLedgerImport handles POST /imports/ledger. Row-level failures live in
// the summary; only a malformed request or a batch-level failure is an error.
func (h *ImportsHandler) RunLedgerImport(w http.ResponseWriter, r *http.Request) {
	var job ledgerimport.Job
	if !decodeJSON(w, r, &job) {
		return
	}

	summary, err := h.importer.Run(r.Context(), job)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	for i := 0; i < summary.InvoicesCreated; i++ {
		h.metrics.ObserveImportRow("imported")
	}
	for range summary.Skipped {
		h.metrics.ObserveImportRow("skipped")
	}
	for range summary.Errors {
		h.metrics.ObserveImportRow("error")
	}
	writeJSON(w, http.StatusOK, summary)
}
