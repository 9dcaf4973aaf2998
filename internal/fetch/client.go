package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/policy/ratelimit"
)

// Proxy routes all traffic through an HTTP proxy with optional basic auth.
type Proxy struct {
	URL      string
	Username string
	Password string
}

// Config controls transport behavior.
type Config struct {
	UserAgent string
	// Timeout bounds a single attempt up to the response headers.
	Timeout time.Duration
	// RequestTimeout bounds a logical request including retries and backoff.
	RequestTimeout   time.Duration
	MaxRetries       int
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	BackoffFactor    float64
	RetryStatusCodes []int
	DNSCacheTTL      time.Duration
	DNSCacheSize     int
	MaxConnsPerHost  int
	RateLimitRPS     float64
	RateLimitBurst   int
	Proxy            *Proxy
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "edge-sitemaps/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 10
	}
	if len(c.RetryStatusCodes) == 0 {
		c.RetryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	if c.DNSCacheTTL <= 0 {
		c.DNSCacheTTL = 5 * time.Minute
	}
	if c.DNSCacheSize <= 0 {
		c.DNSCacheSize = 100
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 5
	}
	return c
}

// Client implements Doer on top of a colly collector.
type Client struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Client. The returned client is safe for concurrent use.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	base, err := newHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	transport := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimitRPS,
		DefaultBurst: cfg.RateLimitBurst,
	}).Transport(newRetryTransport(base, NewRetryPolicy(cfg), logger))

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.RequestTimeout)
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Client{cfg: cfg, logger: logger, baseCollector: c}, nil
}

// Do sends req and returns the final response. Non-2xx statuses that are not
// retryable come back as a Response, not an error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var (
		result   *Response
		fetchErr error
	)
	collector := c.buildCollector(ctx, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, req.URL, bytes.NewReader(req.Body), nil, req.Header.Clone())
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s canceled: %w", method, req.URL, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, req.URL, fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
		}
		if result == nil {
			return nil, fmt.Errorf("%s %s: no response", method, req.URL)
		}
		return result, nil
	}
}

func (c *Client) buildCollector(ctx context.Context, result **Response, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = 0
	collector.UserAgent = c.cfg.UserAgent

	collector.OnResponse(func(r *colly.Response) {
		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		*result = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     header,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
	return collector
}

func newHTTPTransport(cfg Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           newDNSCache(cfg.DNSCacheTTL, cfg.DNSCacheSize, cfg.Timeout).DialContext(dialer),
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.Proxy != nil && cfg.Proxy.URL != "" {
		proxyURL, err := url.Parse(cfg.Proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if cfg.Proxy.Username != "" {
			proxyURL.User = url.UserPassword(cfg.Proxy.Username, cfg.Proxy.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport, nil
}
