package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

// hostLookup adapts a lookup function to dnscache.DNSResolver.
type hostLookup func(ctx context.Context, host string) ([]string, error)

func (f hostLookup) LookupHost(ctx context.Context, host string) ([]string, error) {
	return f(ctx, host)
}

func (hostLookup) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	return net.DefaultResolver.LookupAddr(ctx, addr)
}

// dnsCache puts a refresh interval and a host bound on top of a
// dnscache.Resolver. Entries unused since the previous refresh are dropped
// when the interval elapses; used ones are re-resolved.
type dnsCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	max       int
	timeout   time.Duration
	resolver  *dnscache.Resolver
	hosts     map[string]bool
	refreshed time.Time
	lookup    func(ctx context.Context, host string) ([]string, error)
	now       func() time.Time
}

func newDNSCache(ttl time.Duration, maxItems int, timeout time.Duration) *dnsCache {
	return &dnsCache{
		ttl:     ttl,
		max:     maxItems,
		timeout: timeout,
		lookup:  net.DefaultResolver.LookupHost,
		now:     time.Now,
	}
}

// reset starts over with an empty resolver. Callers hold mu.
func (c *dnsCache) reset() {
	c.resolver = &dnscache.Resolver{
		Timeout: c.timeout,
		Resolver: hostLookup(func(ctx context.Context, host string) ([]string, error) {
			return c.lookup(ctx, host)
		}),
	}
	c.hosts = make(map[string]bool)
	c.refreshed = c.now()
}

// acquire returns the resolver to use for host and, when the refresh interval
// has elapsed, the resolver that needs refreshing.
func (c *dnsCache) acquire(host string) (current, stale *dnscache.Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver == nil {
		c.reset()
	}
	if c.now().Sub(c.refreshed) >= c.ttl {
		for h, used := range c.hosts {
			if !used {
				delete(c.hosts, h)
				continue
			}
			c.hosts[h] = false
		}
		c.refreshed = c.now()
		stale = c.resolver
	}
	if _, ok := c.hosts[host]; !ok && len(c.hosts) >= c.max {
		c.reset()
		stale = nil
	}
	c.hosts[host] = true
	return c.resolver, stale
}

// forget drops r after a failed lookup so the failure is not served from cache.
func (c *dnsCache) forget(r *dnscache.Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolver == r {
		c.reset()
	}
}

// Resolve returns cached addresses for host, resolving on a miss.
func (c *dnsCache) Resolve(ctx context.Context, host string) ([]string, error) {
	r, stale := c.acquire(host)
	if stale != nil {
		stale.Refresh(true)
	}
	addrs, err := r.LookupHost(ctx, host)
	if err == nil && len(addrs) == 0 {
		err = errors.New("no addresses")
	}
	if err != nil {
		c.forget(r)
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addrs, nil
}

// DialContext dials through the cache, trying each resolved address in turn.
func (c *dnsCache) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", addr, err)
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		addrs, err := c.Resolve(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
