package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/locales", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"code":"en"},{"code":"de"}]`)
	})
	mux.HandleFunc("/api/pages", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"root","path":""},{"id":"faq","path":"faq"}]`)
	})
	mux.HandleFunc("/api/pages/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"blocks":{}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, api string) string {
	t.Helper()
	body := `
logging:
  level: error
http:
  timeout: 2s
  max_retries: 0
storage:
  provider: memory
base_url: https://casino.example
modules:
  - name: cms
    locales_api: {type: ss, url: "` + api + `/api/locales"}
    pages_api: {type: ss, url: "` + api + `/api/pages"}
workers:
  - name: main
    account_id: acc-1
    auth:
      token: super-secret
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateDryRun(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, listingServer(t).URL)
	out, err := run(t, "generate", "--config", cfg, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "run ")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "dry_run")
	assert.Contains(t, out, "pages=4")
	assert.Contains(t, out, "units=3")
}

func TestGenerateUnknownWorker(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, listingServer(t).URL)
	_, err := run(t, "generate", "--config", cfg, "--dry-run", "--worker", "ghost")
	require.ErrorContains(t, err, "unknown worker")
}

func TestInspectRedactsSecrets(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "https://api.example")
	out, err := run(t, "inspect", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "workers:")
	assert.Contains(t, out, "name: main")
	assert.Contains(t, out, "base_url: https://casino.example")
	assert.Contains(t, out, "****")
	assert.False(t, strings.Contains(out, "super-secret"))
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Parallel()

	_, err := run(t, "inspect", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "load config")
}
