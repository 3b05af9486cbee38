// Package export archives report tables to a Google Cloud Storage bucket:
// one CSV per table plus a zip of all of them, under <prefix>/<run id>/.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	gcsstorage "cloud.google.com/go/storage"

	"budgetflow/internal/log"
	"budgetflow/internal/table"
)

const archiveName = "report.zip"

// Bucket opens writers for objects. The GCS implementation is NewBucket.
type Bucket interface {
	NewWriter(ctx context.Context, name, contentType string) io.WriteCloser
}

type gcsBucket struct {
	handle *gcsstorage.BucketHandle
}

// NewBucket adapts a GCS bucket handle.
func NewBucket(handle *gcsstorage.BucketHandle) Bucket {
	return gcsBucket{handle: handle}
}

func (b gcsBucket) NewWriter(ctx context.Context, name, contentType string) io.WriteCloser {
	w := b.handle.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// Connect creates a storage client using application default credentials.
func Connect(ctx context.Context, bucket string) (*gcsstorage.Client, Bucket, error) {
	client, err := gcsstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, NewBucket(client.Bucket(bucket)), nil
}

type Exporter struct {
	bucket Bucket
	prefix string
	logger *log.Logger
}

func New(bucket Bucket, prefix string, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Exporter{bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger.WithComponent(log.ComponentExport)}
}

// Export uploads the tables of a run and returns the object names written.
func (e *Exporter) Export(ctx context.Context, runID string, tables []table.Table) ([]string, error) {
	if runID == "" {
		runID = "adhoc"
	}
	dir := path.Join(e.prefix, runID)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	names := make([]string, 0, len(tables)+1)
	for _, t := range tables {
		var buf bytes.Buffer
		if err := t.WriteCSV(&buf); err != nil {
			return names, fmt.Errorf("encode %s: %w", t.Name, err)
		}
		file := ObjectName(t.Name)
		name := path.Join(dir, file)
		if err := e.put(ctx, name, "text/csv", buf.Bytes()); err != nil {
			return names, err
		}
		names = append(names, name)

		zf, err := zw.Create(file)
		if err != nil {
			return names, fmt.Errorf("zip %s: %w", t.Name, err)
		}
		if _, err := zf.Write(buf.Bytes()); err != nil {
			return names, fmt.Errorf("zip %s: %w", t.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return names, fmt.Errorf("create zip: %w", err)
	}
	zipName := path.Join(dir, archiveName)
	if err := e.put(ctx, zipName, "application/zip", archive.Bytes()); err != nil {
		return names, err
	}
	names = append(names, zipName)

	e.logger.InfoContext(ctx, "Report exported", log.FieldRunID, runID, "objects", len(names), "prefix", dir)
	return names, nil
}

func (e *Exporter) put(ctx context.Context, name, contentType string, data []byte) error {
	w := e.bucket.NewWriter(ctx, name, contentType)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", name, err)
	}
	// GCS commits the object on Close
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// ObjectName turns a sheet name into a CSV object name.
func ObjectName(sheet string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(strings.TrimSpace(sheet)) + ".csv"
}
