package fetch

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"syscall"
	"time"
)

// RetryPolicy decides which transport outcomes are transient and how long to wait.
type RetryPolicy struct {
	maxRetries  int
	minDelay    time.Duration
	maxDelay    time.Duration
	factor      float64
	statusCodes []int
}

// NewRetryPolicy builds a policy from cfg, filling unset values with defaults.
func NewRetryPolicy(cfg Config) *RetryPolicy {
	cfg = cfg.withDefaults()
	return &RetryPolicy{
		maxRetries:  cfg.MaxRetries,
		minDelay:    cfg.BackoffMin,
		maxDelay:    cfg.BackoffMax,
		factor:      cfg.BackoffFactor,
		statusCodes: append([]int(nil), cfg.RetryStatusCodes...),
	}
}

// RetryableStatus reports whether a response status should be retried.
func (p *RetryPolicy) RetryableStatus(code int) bool {
	return slices.Contains(p.statusCodes, code)
}

// RetryableError reports whether a transport error is transient: connection
// aborts, resets, refusals, and timeouts. Context cancellation never is.
func (p *RetryPolicy) RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Backoff returns the wait before retry number attempt+1.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.minDelay) * math.Pow(p.factor, float64(attempt))
	if delay > float64(p.maxDelay) || math.IsInf(delay, 0) {
		return p.maxDelay
	}
	return time.Duration(delay)
}

// retryAfter parses a Retry-After header given in seconds, bounded by maxDelay.
func (p *RetryPolicy) retryAfter(h http.Header) (time.Duration, bool) {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > p.maxDelay {
		return 0, false
	}
	return d, true
}
