package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "sitemaps-archive", CacheControl: "no-cache"})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	key := "2026/02/08/run-1/casino/casino.xml"
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/sitemaps-archive/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<urlset/>")
		assert.Contains(t, string(body), `"cacheControl":"no-cache"`)
		fmt.Fprintln(w, `{"name":"`+key+`","bucket":"sitemaps-archive"}`)
	}))

	uri, err := store.PutObject(context.Background(), key, "application/xml", strings.NewReader("<urlset/>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://sitemaps-archive/"+key, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "k.xml", "application/xml", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}
