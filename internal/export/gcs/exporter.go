// Package gcs uploads result snapshots to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/export"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Exporter writes snapshots to a configured GCS bucket.
type Exporter struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ crawler.Exporter = (*Exporter)(nil)

// New creates a GCS-backed exporter.
func New(client *storage.Client, cfg Config) (*Exporter, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// Export uploads entries and returns the gs:// URI of the snapshot.
func (e *Exporter) Export(ctx context.Context, entries []crawler.ResultEntry) (string, error) {
	data, err := export.Encode(entries)
	if err != nil {
		return "", err
	}
	name := export.ObjectName(e.prefix, e.now())
	writer := e.client.Bucket(e.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = export.ContentType
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return "", fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", e.bucket, name), nil
}
