// Package storage lays out archived run artifacts. Backends live in the
// local, memory and gcs subpackages.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// BlobStore persists one artifact and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Content types used for archived artifacts.
const (
	ContentTypeXML        = "application/xml; charset=utf-8"
	ContentTypeJavaScript = "application/javascript+module"
	ContentTypeJSON       = "application/json"
)

// ObjectKey builds "<prefix>/<yyyy>/<mm>/<dd>/<run>/<worker>/<file>", partitioned by
// the run's start date so listings stay cheap in object stores.
func ObjectKey(prefix string, started time.Time, runID, worker, file string) string {
	parts := make([]string, 0, 7)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	started = started.UTC()
	parts = append(parts,
		started.Format("2006"),
		started.Format("01"),
		started.Format("02"),
		runID,
		worker,
		file,
	)
	return path.Join(parts...)
}
