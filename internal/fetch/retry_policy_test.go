package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{BackoffMin: time.Second, BackoffMax: time.Minute, BackoffFactor: 10})
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 10*time.Second, p.Backoff(1))
	assert.Equal(t, time.Minute, p.Backoff(2))
	assert.Equal(t, time.Minute, p.Backoff(50))
}

func TestRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{})
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, p.RetryableStatus(code), "status %d", code)
	}
	assert.False(t, p.RetryableStatus(http.StatusNotFound))
	assert.False(t, p.RetryableStatus(http.StatusBadRequest))
	assert.Equal(t, 10*time.Minute, p.maxDelay)
}

func TestRetryPolicyRetryableError(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{})
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: true},
		{name: "refused", err: syscall.ECONNREFUSED, want: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "x"}, want: true},
		{name: "plain", err: errors.New("bad certificate"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.RetryableError(tc.err))
		})
	}
}

func TestRetryPolicyRetryAfter(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{BackoffMax: time.Minute})
	d, ok := p.retryAfter(http.Header{"Retry-After": {"3"}})
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = p.retryAfter(http.Header{"Retry-After": {"3600"}})
	assert.False(t, ok)
	_, ok = p.retryAfter(http.Header{"Retry-After": {"soon"}})
	assert.False(t, ok)
	_, ok = p.retryAfter(http.Header{})
	assert.False(t, ok)
}
