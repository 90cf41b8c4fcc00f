// Package handlers exposes the billing engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error         string `json:"error"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Retriable     bool   `json:"retriable,omitempty"`
}

// writeError maps billing error kinds onto HTTP statuses: validation 400,
// not found 404, conflict and overpayment 409, collaborator failures 502
// with a retry hint.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error) {
	if ae, ok := billing.AsAlreadyExists(err); ok {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:         "invoice already exists",
			InvoiceNumber: ae.InvoiceNumber,
		})
		return
	}

	var be *billing.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case billing.KindValidation:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: be.Message})
		case billing.KindNotFound:
			writeJSON(w, http.StatusNotFound, errorResponse{Error: be.Message})
		case billing.KindConflict, billing.KindOverpayment:
			writeJSON(w, http.StatusConflict, errorResponse{Error: be.Message})
		case billing.KindCollaborator:
			if be.Retriable {
				w.Header().Set("Retry-After", "5")
			}
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: be.Message, Retriable: be.Retriable})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	logger.Error("unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}
