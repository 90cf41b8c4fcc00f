// Command ledger-import reads a legacy ledger spreadsheet (CSV or XLSX) and
// submits it to the billing API's import endpoint. The first row is assumed
// to be a header. Expected columns:
//
//	patient name, appointment type, date, invoice amount, discount, payment, payment type
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bridgesphysio/clinic-portal/internal/ledgerimport"
)

func main() {
	var (
		file  = flag.String("file", "", "ledger file to import (.csv or .xlsx)")
		label = flag.String("label", "", "source label namespacing the import (e.g. ledger-2024)")
		api   = flag.String("api", "http://localhost:8080", "billing API base URL")
		token = flag.String("token", os.Getenv("ADMIN_JWT"), "staff JWT (defaults to ADMIN_JWT)")
	)
	flag.Parse()

	if *file == "" || *label == "" {
		flag.Usage()
		os.Exit(2)
	}

	rows, err := readRows(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}
	if len(rows) == 0 {
		log.Fatalf("%s contains no data rows", *file)
	}

	summary, err := submit(*api, *token, ledgerimport.Job{SourceLabel: *label, Rows: rows})
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	printSummary(summary)
	if len(summary.Errors) > 0 {
		os.Exit(1)
	}
}

func readRows(path string) ([]ledgerimport.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func toRow(record []string) ledgerimport.Row {
	get := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	return ledgerimport.Row{
		PatientName:     get(0),
		AppointmentType: get(1),
		Date:            get(2),
		InvoiceAmount:   get(3),
		Discount:        get(4),
		Payment:         get(5),
		PaymentType:     get(6),
	}
}

func readCSV(path string) ([]ledgerimport.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	rows := make([]ledgerimport.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, toRow(record))
	}
	return rows, nil
}

func readXLSX(path string) ([]ledgerimport.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	rows := make([]ledgerimport.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, toRow(record))
	}
	return rows, nil
}

func submit(api, token string, job ledgerimport.Job) (*ledgerimport.Summary, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(api, "/")+"/api/v1/imports/ledger", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var summary ledgerimport.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func printSummary(s *ledgerimport.Summary) {
	fmt.Printf("processed:            %d\n", s.Processed)
	fmt.Printf("appointments created: %d\n", s.AppointmentsCreated)
	fmt.Printf("invoices created:     %d\n", s.InvoicesCreated)
	fmt.Printf("payments created:     %d\n", s.PaymentsCreated)
	for _, issue := range s.Skipped {
		fmt.Printf("skipped row %d (%s): %s\n", issue.RowNumber, issue.PatientName, issue.Reason)
	}
	for _, issue := range s.Errors {
		fmt.Printf("ERROR row %d (%s): %s\n", issue.RowNumber, issue.PatientName, issue.Reason)
	}
}
