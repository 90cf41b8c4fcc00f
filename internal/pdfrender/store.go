package pdfrender

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// ArtifactStore persists rendered PDFs and returns the stored path.
type ArtifactStore interface {
	Put(ctx context.Context, invoiceNumber string, data []byte) (path string, err error)
}

// S3Store stores PDFs in an S3 bucket under invoices/{number}.pdf.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, invoiceNumber string, data []byte) (string, error) {
	key := fmt.Sprintf("invoices/%s.pdf", invoiceNumber)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("pdfrender: s3 put %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// DirStore stores PDFs on the local filesystem.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (d *DirStore) Put(ctx context.Context, invoiceNumber string, data []byte) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("pdfrender: create dir: %w", err)
	}
	path := filepath.Join(d.dir, invoiceNumber+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("pdfrender: write %s: %w", path, err)
	}
	return path, nil
}

// Renderer couples the sidecar client with artifact storage.
type Renderer struct {
	client *Client
	store  ArtifactStore
	logger *logging.Logger
}

func NewRenderer(client *Client, store ArtifactStore, logger *logging.Logger) *Renderer {
	return &Renderer{client: client, store: store, logger: logger.Component("pdfrender")}
}

// RenderAndStore renders the snapshot and persists the result. A storage
// failure is not fatal: the bytes are still returned with an empty path so
// the caller can attach or stream them.
func (r *Renderer) RenderAndStore(ctx context.Context, snap Snapshot) (data []byte, path string, err error) {
	data, err = r.client.Render(ctx, snap)
	if err != nil {
		return nil, "", err
	}
	if r.store == nil {
		return data, "", nil
	}
	path, err = r.store.Put(ctx, snap.Invoice.InvoiceNumber, data)
	if err != nil {
		r.logger.Error("pdf storage failed, returning bytes only",
			"invoice_number", snap.Invoice.InvoiceNumber, "error", err)
		return data, "", nil
	}
	return data, path, nil
}
