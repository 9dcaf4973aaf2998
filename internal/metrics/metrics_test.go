package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://api.example.com/locales", "api.example.com"},
		{"no scheme", "Example.COM/pages", "example.com"},
		{"with port", "http://localhost:8080/x", "localhost"},
		{"garbage", "http://", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeHost(tc.input))
		})
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "3xx", StatusClass(301))
	assert.Equal(t, "4xx", StatusClass(404))
	assert.Equal(t, "5xx", StatusClass(503))
	assert.Equal(t, "other", StatusClass(0))
}

func TestObserveSitemapsCountsDrops(t *testing.T) {
	ObserveSitemaps("metrics-test-worker", 130, 10)
	assert.Equal(t, float64(130), testutil.ToFloat64(sitemapsBuiltTotal.WithLabelValues("metrics-test-worker")))
	assert.Equal(t, float64(10), testutil.ToFloat64(sitemapsDroppedTotal.WithLabelValues("metrics-test-worker")))

	ObserveSitemaps("metrics-test-clean", 4, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(sitemapsDroppedTotal.WithLabelValues("metrics-test-clean")))
}

func TestObservePagesAndUploads(t *testing.T) {
	ObservePages("w", "metrics-test-module", 12)
	ObservePages("w", "metrics-test-module", 3)
	assert.Equal(t, float64(15), testutil.ToFloat64(pagesTotal.WithLabelValues("w", "metrics-test-module")))

	ObserveUpload("metrics-test-upload", "success")
	assert.Equal(t, float64(1), testutil.ToFloat64(uploadsTotal.WithLabelValues("metrics-test-upload", "success")))
}

func TestPushSkipsWithoutGateway(t *testing.T) {
	require.NoError(t, Push(context.Background(), "", "job"))
}

func TestPushSendsToGateway(t *testing.T) {
	var hits int
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Contains(t, r.URL.Path, "/metrics/job/edge_sitemaps")
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	ObserveRun("success", 2*time.Second)
	require.NoError(t, Push(context.Background(), gw.URL, ""))
	assert.Equal(t, 1, hits)
}
