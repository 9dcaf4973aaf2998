package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSecondToken(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second token arrives ~100ms after the first.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "api.example.com"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "api.example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Hosts have independent buckets.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "other.example.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "slow.example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "slow.example.com"))
}

func TestTransportPassThroughWhenUnlimited(t *testing.T) {
	t.Parallel()

	base := http.DefaultTransport
	assert.Equal(t, base, New(Config{}).Transport(base))
}

func TestTransportLimitsRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(Config{DefaultRPS: 20, DefaultBurst: 1}).Transport(http.DefaultTransport)}
	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
