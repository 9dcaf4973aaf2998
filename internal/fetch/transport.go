package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/metrics"
)

// retryTransport re-sends requests that failed transiently.
type retryTransport struct {
	next   http.RoundTripper
	policy *RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(next http.RoundTripper, policy *RetryPolicy, logger *zap.Logger) *retryTransport {
	return &retryTransport{next: next, policy: policy, logger: logger, sleep: sleepContext}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := metrics.SanitizeHost(req.URL.String())
	current := req
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			next, err := rewind(req)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w (last error: %v)", req.Method, req.URL, err, lastErr)
			}
			current = next
		}

		resp, err := t.next.RoundTrip(current)
		var wait time.Duration
		reason := ""
		switch {
		case err != nil:
			metrics.ObserveFetch(host, "error")
			if !t.policy.RetryableError(err) {
				return nil, err
			}
			lastErr = err
			reason = "network"
		default:
			metrics.ObserveFetch(host, metrics.StatusClass(resp.StatusCode))
			if !t.policy.RetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			lastErr = &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
			reason = fmt.Sprintf("status_%d", resp.StatusCode)
			if d, ok := t.policy.retryAfter(resp.Header); ok {
				wait = d
			}
			drain(resp)
		}

		if attempt >= t.policy.maxRetries {
			return nil, fmt.Errorf("%s %s: giving up after %d attempts: %w", req.Method, req.URL, attempt+1, lastErr)
		}
		if wait == 0 {
			wait = t.policy.Backoff(attempt)
		}
		metrics.ObserveFetchRetry(host, reason)
		t.logger.Warn("retrying request",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		if err := t.sleep(req.Context(), wait); err != nil {
			return nil, fmt.Errorf("%s %s: %w (last error: %v)", req.Method, req.URL, err, lastErr)
		}
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
