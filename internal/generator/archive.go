package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
	"github.com/JakeFAU/edge-sitemaps/internal/storage"
)

const indexFile = sitemap.IndexName + ".xml"

// archive stores the distributed sitemaps, the index and the unit scripts.
// It returns the URIs of the stored objects.
func (g *Generator) archive(ctx context.Context, runID string, started time.Time, worker string, b WorkerBuild) ([]string, error) {
	if g.store == nil {
		return nil, nil
	}
	prefix := g.cfg.Storage.Prefix

	var uris []string
	put := func(file, contentType, body string) error {
		key := storage.ObjectKey(prefix, started, runID, worker, file)
		uri, err := g.store.PutObject(ctx, key, contentType, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("archive %s: %w", file, err)
		}
		uris = append(uris, uri)
		return nil
	}

	for _, s := range b.Distribution.Sitemaps() {
		if err := put(s.Name+".xml", storage.ContentTypeXML, s.XML); err != nil {
			return uris, err
		}
	}
	if err := put(indexFile, storage.ContentTypeXML, b.Index); err != nil {
		return uris, err
	}
	for _, s := range b.Scripts {
		if err := put(s.Name+".js", storage.ContentTypeJavaScript, s.Source); err != nil {
			return uris, err
		}
	}
	return uris, nil
}
