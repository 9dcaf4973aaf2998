package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/clock/system"
	"github.com/JakeFAU/edge-sitemaps/internal/cloudflare"
	"github.com/JakeFAU/edge-sitemaps/internal/config"
	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/id/uuid"
	pubmemory "github.com/JakeFAU/edge-sitemaps/internal/publisher/memory"
	"github.com/JakeFAU/edge-sitemaps/internal/retry"
	"github.com/JakeFAU/edge-sitemaps/internal/script"
	"github.com/JakeFAU/edge-sitemaps/internal/source"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/memory"
)

var runStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func cmsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/locales", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"code":"en"},{"code":"no"}]`)
	})
	mux.HandleFunc("/api/pages", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"root","path":"","children":[{"id":"all","path":"games/all"}]},{"id":"promo","path":"promo"}]`)
	})
	mux.HandleFunc("/api/pages/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/pages/")
		_, _ = io.WriteString(w, `{"path":"`+path+`","blocks":{}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func module(name, api string) config.ModuleConfig {
	return config.ModuleConfig{
		Name:       name,
		LocalesAPI: config.APIConfig{Type: "ss", URL: api + "/api/locales"},
		PagesAPI:   config.APIConfig{Type: "ss", URL: api + "/api/pages"},
	}
}

func testConfig(api string) config.Config {
	return config.Config{
		HTTP:       config.HTTPConfig{Timeout: 2 * time.Second, BackoffMin: time.Millisecond},
		Retry:      source.Ceilings{Locales: 1, Pages: 1, Catalog: 1, Details: 1},
		Deployment: config.DeploymentConfig{Mode: script.ModeRouter, Units: 3, UnitCapacity: 40},
		Storage:    config.StorageConfig{Prefix: "sitemaps"},
		Notify:     config.NotifyConfig{Topic: "sitemaps-deployed"},
		Site: config.Site{
			BaseURL: "https://casino.example",
			Modules: []config.ModuleConfig{module("cms", api)},
		},
		Workers: []config.WorkerConfig{{Name: "main", AccountID: "acc-1", Auth: cloudflare.Auth{Token: "tok"}}},
	}
}

type upload struct {
	account string
	script  script.Script
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (f *fakeUploader) UploadScript(_ context.Context, accountID string, s script.Script) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, upload{account: accountID, script: s})
	return nil
}

func (f *fakeUploader) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.uploads))
	for i, u := range f.uploads {
		out[i] = u.script.Name
	}
	return out
}

type fakeLedger struct {
	mu      sync.Mutex
	records []RunRecord
}

func (l *fakeLedger) RecordWorker(_ context.Context, rec RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

type harness struct {
	uploader  *fakeUploader
	ledger    *fakeLedger
	store     *memory.BlobStore
	publisher *pubmemory.Publisher
	auths     []cloudflare.Auth
}

func newHarness() *harness {
	return &harness{
		uploader:  &fakeUploader{},
		ledger:    &fakeLedger{},
		store:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
	}
}

func (h *harness) options(cfg config.Config) Options {
	return Options{
		Config:    cfg,
		Logger:    zap.NewNop(),
		IDs:       uuid.New(),
		Clock:     system.Fixed(runStart),
		Store:     h.store,
		Publisher: h.publisher,
		Ledger:    h.ledger,
		NewUploader: func(auth cloudflare.Auth, _ fetch.Doer) (Uploader, error) {
			h.auths = append(h.auths, auth)
			return h.uploader, nil
		},
	}
}

func TestRunDeploysEveryUnit(t *testing.T) {
	t.Parallel()

	srv := cmsServer(t)
	h := newHarness()
	g, err := New(h.options(testConfig(srv.URL)))
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Workers, 1)

	wr := report.Workers[0]
	assert.Equal(t, StatusDeployed, wr.Status)
	assert.Equal(t, 6, wr.Pages)
	assert.Equal(t, 1, wr.Sitemaps)
	assert.Equal(t, 0, wr.Dropped)
	assert.Equal(t, 3, wr.Units)

	assert.Equal(t, []string{"main-1", "main-2", "main-3"}, h.uploader.names())
	first := h.uploader.uploads[0]
	assert.Equal(t, "acc-1", first.account)
	assert.Contains(t, first.script.Routes, script.IndexRoute)
	assert.Contains(t, first.script.Routes["/cms.xml"], "https://casino.example/no/promo")
	assert.Contains(t, first.script.Routes[script.IndexRoute], "<loc>https://casino.example/cms.xml</loc>")
	assert.Empty(t, h.uploader.uploads[1].script.Routes)
	assert.Equal(t, []cloudflare.Auth{{Token: "tok"}}, h.auths)

	keys := h.store.Keys()
	require.Len(t, keys, 5)
	prefix := "sitemaps/2026/03/14/" + report.RunID + "/main/"
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, prefix), k)
	}
	obj, ok := h.store.Get(prefix + "cms.xml")
	require.True(t, ok)
	assert.Contains(t, string(obj.Data), `hreflang="no"`)

	require.Len(t, h.ledger.records, 1)
	rec := h.ledger.records[0]
	assert.Equal(t, report.RunID, rec.RunID)
	assert.Equal(t, StatusDeployed, rec.Status)
	assert.Equal(t, runStart, rec.StartedAt)
	assert.Len(t, rec.Artifacts, 5)
	assert.Empty(t, rec.Error)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sitemaps-deployed", msgs[0].Topic)
	assert.Equal(t, map[string]string{"run_id": report.RunID, "worker": "main", "status": StatusDeployed}, msgs[0].Attributes)
	var note Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &note))
	assert.Equal(t, []string{"https://casino.example/cms.xml"}, note.Sitemaps)
	assert.Equal(t, []string{"main-1", "main-2", "main-3"}, note.Scripts)
}

func TestDryRunSkipsUpload(t *testing.T) {
	t.Parallel()

	srv := cmsServer(t)
	h := newHarness()
	opts := h.options(testConfig(srv.URL))
	opts.DryRun = true
	g, err := New(opts)
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, StatusDryRun, report.Workers[0].Status)
	assert.Empty(t, h.uploader.names())
	assert.Empty(t, h.auths)
	require.Len(t, h.ledger.records, 1)
	assert.True(t, h.ledger.records[0].DryRun)
}

func TestDryRunDoesNotNeedCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://api.example")
	cfg.Workers[0].Auth = cloudflare.Auth{}
	_, err := New(Options{Config: cfg, IDs: uuid.New(), DryRun: true})
	require.NoError(t, err)

	_, err = New(Options{Config: cfg, IDs: uuid.New()})
	require.ErrorIs(t, err, cloudflare.ErrInvalidAuth)
}

type proxiedDoer struct {
	proxy string
}

func (proxiedDoer) Do(context.Context, fetch.Request) (*fetch.Response, error) {
	return nil, errors.New("offline")
}

func TestUploaderUsesWorkerProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://api.example")
	mod := module("cms", "https://api.example")
	mod.Proxy = &config.ProxyConfig{URL: "http://module-proxy:3128"}
	cfg.Workers[0].Config = &config.Site{
		Proxy:   &config.ProxyConfig{URL: "http://worker-proxy:3128", Username: "u", Password: "p"},
		Modules: []config.ModuleConfig{mod},
	}

	var uploadProxy string
	_, err := New(Options{
		Config: cfg,
		IDs:    uuid.New(),
		NewDoer: func(fc fetch.Config, _ *zap.Logger) (fetch.Doer, error) {
			d := proxiedDoer{}
			if fc.Proxy != nil {
				d.proxy = fc.Proxy.URL
			}
			return d, nil
		},
		NewUploader: func(_ cloudflare.Auth, doer fetch.Doer) (Uploader, error) {
			uploadProxy = doer.(proxiedDoer).proxy
			return &fakeUploader{}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://worker-proxy:3128", uploadProxy)
}

func TestNewRejectsConfigurationErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://api.example")
	cfg.Modules[0].PagesAPI.Type = "wordpress"
	_, err := New(Options{Config: cfg, IDs: uuid.New(), DryRun: true})
	require.ErrorIs(t, err, source.ErrUnsupportedProvider)

	cfg = testConfig("https://api.example")
	cfg.Deployment.Template = "/does/not/exist.js"
	_, err = New(Options{Config: cfg, IDs: uuid.New(), DryRun: true})
	require.Error(t, err)

	cfg = testConfig("https://api.example")
	_, err = New(Options{Config: cfg, IDs: uuid.New(), DryRun: true, Worker: "ghost"})
	require.ErrorIs(t, err, ErrUnknownWorker)

	_, err = New(Options{Config: cfg})
	require.Error(t, err)
}

func twoWorkerConfig(broken, healthy string) config.Config {
	cfg := testConfig(healthy)
	cfg.Workers = []config.WorkerConfig{
		{
			Name:      "broken",
			AccountID: "acc-0",
			Auth:      cloudflare.Auth{Token: "tok"},
			Config:    &config.Site{Modules: []config.ModuleConfig{module("cms", broken)}},
		},
		cfg.Workers[0],
	}
	return cfg
}

func TestFirstWorkerFailureAbortsRun(t *testing.T) {
	t.Parallel()

	h := newHarness()
	g, err := New(h.options(twoWorkerConfig(failingServer(t).URL, cmsServer(t).URL)))
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker broken")
	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 2, exhausted.Attempts)

	require.Len(t, report.Workers, 1)
	assert.Equal(t, StatusFailed, report.Workers[0].Status)
	assert.Empty(t, h.uploader.names())
	require.Len(t, h.ledger.records, 1)
	assert.Equal(t, StatusFailed, h.ledger.records[0].Status)
	assert.NotEmpty(t, h.ledger.records[0].Error)
}

func TestIsolatedWorkersContinueAfterFailure(t *testing.T) {
	t.Parallel()

	cfg := twoWorkerConfig(failingServer(t).URL, cmsServer(t).URL)
	cfg.Failure.IsolateWorkers = true
	h := newHarness()
	g, err := New(h.options(cfg))
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker broken")

	require.Len(t, report.Workers, 2)
	assert.Equal(t, StatusFailed, report.Workers[0].Status)
	assert.Equal(t, StatusDeployed, report.Workers[1].Status)
	assert.Equal(t, []string{"main-1", "main-2", "main-3"}, h.uploader.names())
	assert.Len(t, h.ledger.records, 2)
	assert.Len(t, h.publisher.Messages(), 2)
}

func TestUploadFailureMarksWorkerFailed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.uploader.err = errors.New("quota exceeded")
	g, err := New(h.options(testConfig(cmsServer(t).URL)))
	require.NoError(t, err)

	report, err := g.Run(context.Background())
	require.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, StatusFailed, report.Workers[0].Status)
}

func TestBuildReturnsRoutesWithoutSideEffects(t *testing.T) {
	t.Parallel()

	h := newHarness()
	opts := h.options(testConfig(cmsServer(t).URL))
	opts.DryRun = true
	g, err := New(opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, g.Workers())

	build, err := g.Build(context.Background(), "main")
	require.NoError(t, err)
	routes := build.Routes()
	assert.Len(t, routes, 2)
	assert.Contains(t, routes, "/cms.xml")
	assert.Contains(t, routes, script.IndexRoute)
	assert.Empty(t, h.store.Keys())
	assert.Empty(t, h.ledger.records)

	_, err = g.Build(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownWorker)
}
