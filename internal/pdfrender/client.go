// Package pdfrender provides a client for the headless browser sidecar that
// renders invoices to PDF, plus artifact storage for the rendered bytes.
package pdfrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bridgesphysio/clinic-portal/internal/billing"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

var pdfMagic = []byte("%PDF")

// Snapshot is the document model posted to the sidecar.
type Snapshot struct {
	Invoice             *invoices.Invoice `json:"invoice"`
	Branding            settings.Branding `json:"branding"`
	PaymentInstructions string            `json:"payment_instructions,omitempty"`
	Currency            string            `json:"currency"`
}

// Client is an HTTP client for the PDF sidecar service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new PDF sidecar client.
// baseURL is the sidecar service URL (e.g. "http://localhost:3000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render posts the snapshot and returns the PDF bytes. Any response that
// does not start with the %PDF magic is a terminal collaborator failure and
// is never stored; transport failures are retriable.
func (c *Client) Render(ctx context.Context, snap Snapshot) ([]byte, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("pdfrender: marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pdfrender: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, billing.Collaborator(err, true, "pdf sidecar unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, billing.Collaborator(err, true, "pdf sidecar read failed")
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("pdf sidecar returned error status",
			"status", resp.StatusCode, "invoice_number", snap.Invoice.InvoiceNumber)
		return nil, billing.Collaborator(
			fmt.Errorf("status %d", resp.StatusCode), resp.StatusCode >= 500,
			"pdf sidecar returned status %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		c.logger.Error("pdf sidecar returned non-PDF output",
			"invoice_number", snap.Invoice.InvoiceNumber, "bytes", len(data))
		return nil, billing.Collaborator(nil, false, "pdf sidecar returned non-PDF output")
	}

	c.logger.Info("invoice rendered",
		"invoice_number", snap.Invoice.InvoiceNumber, "bytes", len(data))
	return data, nil
}
