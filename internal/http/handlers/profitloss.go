package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/profitloss"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// ReportService computes P&L reports and manages manual expenses.
type ReportService interface {
	Report(ctx context.Context, start, end time.Time) (*profitloss.Report, error)
	CreateExpense(ctx context.Context, in profitloss.ExpenseInput) (*profitloss.ManualExpense, error)
	UpdateExpense(ctx context.Context, expenseID int64, in profitloss.ExpenseInput) error
	DeleteExpense(ctx context.Context, expenseID int64) error
}

// ProfitLossHandler serves the P&L report, export, and expense endpoints.
type ProfitLossHandler struct {
	service  ReportService
	settings SettingsSource
	logger   *logging.Logger
}

func NewProfitLossHandler(service ReportService, settingsSrc SettingsSource, logger *logging.Logger) *ProfitLossHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProfitLossHandler{service: service, settings: settingsSrc, logger: logger.Component("profitloss_handler")}
}

func parseRange(r *http.Request) (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		return start, end, billing.Validationf("start must be a YYYY-MM-DD date")
	}
	end, err = time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		return start, end, billing.Validationf("end must be a YYYY-MM-DD date")
	}
	return start, end, nil
}

// Report handles GET /profit-loss?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *ProfitLossHandler) Report(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	report, err := h.service.Report(r.Context(), start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Export handles GET /profit-loss/export?format=csv|xlsx.
func (h *ProfitLossHandler) Export(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	report, err := h.service.Report(r.Context(), start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	currency := "GBP"
	if h.settings != nil {
		if cfg, err := h.settings.Latest(r.Context()); err == nil {
			currency = cfg.Currency
		}
	}

	filename := fmt.Sprintf("profit-loss-%s-to-%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	var data []byte
	var contentType string
	switch format {
	case "csv":
		data, err = profitloss.ExportCSV(report, currency)
		contentType = "text/csv"
		filename += ".csv"
	case "xlsx":
		data, err = profitloss.ExportXLSX(report, currency)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename += ".xlsx"
	default:
		writeError(w, h.logger, billing.Validationf("unknown export format %q", format))
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type expenseRequest struct {
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description"`
	AmountPence int64  `json:"amount_pence"`
}

func (req expenseRequest) toInput() (profitloss.ExpenseInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return profitloss.ExpenseInput{}, billing.Validationf("date must be a YYYY-MM-DD date")
	}
	return profitloss.ExpenseInput{
		Date:        date,
		Category:    req.Category,
		Description: req.Description,
		Amount:      billing.Pence(req.AmountPence),
	}, nil
}

// CreateExpense handles POST /profit-loss/expenses.
func (h *ProfitLossHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	expense, err := h.service.CreateExpense(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// UpdateExpense handles PUT /profit-loss/expenses/{id}.
func (h *ProfitLossHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid expense id"})
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.UpdateExpense(r.Context(), id, in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expense_id": id, "updated": true})
}

// DeleteExpense handles DELETE /profit-loss/expenses/{id}.
func (h *ProfitLossHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid expense id"})
		return
	}
	if err := h.service.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expense_id": id, "deleted": true})
}
