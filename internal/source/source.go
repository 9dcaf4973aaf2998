// Package source discovers locales and indexable page paths from upstream listing
// APIs. Providers are selected by a type tag from a fixed registry.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/purell"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/retry"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

// ErrUnsupportedProvider is returned for an unknown provider type tag.
var ErrUnsupportedProvider = errors.New("unsupported provider type")

// Ceilings are the domain-level retry ceilings per call kind.
type Ceilings struct {
	Locales int `mapstructure:"locales" yaml:"locales"`
	Pages   int `mapstructure:"pages" yaml:"pages"`
	Catalog int `mapstructure:"catalog" yaml:"catalog"`
	Details int `mapstructure:"details" yaml:"details"`
}

// DefaultCeilings mirror the listing APIs' observed reliability.
var DefaultCeilings = Ceilings{Locales: 5, Pages: 5, Catalog: 3, Details: 3}

// Options configures a provider.
type Options struct {
	Endpoint  string
	Doer      fetch.Doer
	Retry     Ceilings
	UserAgent string
	// DetailConcurrency caps in-flight detail requests; zero means unbounded.
	DetailConcurrency int
	Logger            *zap.Logger
}

// LocaleSource lists the active locale codes of a site.
type LocaleSource interface {
	Locales(ctx context.Context, f *filter.Compiled) ([]string, error)
}

// PageSource lists page paths. Candidates are filtered but not yet checked
// per locale; Verify returns the per-locale indexable subset.
type PageSource interface {
	Candidates(ctx context.Context, f *filter.Compiled) ([]string, error)
	Verify(ctx context.Context, locales, paths []string) ([]sitemap.LocalePaths, error)
}

var localeProviders = map[string]func(Options) LocaleSource{
	"ss": func(o Options) LocaleSource { return &ssLocales{opts: o} },
}

var pageProviders = map[string]func(Options) PageSource{
	"ss":    func(o Options) PageSource { return &ssTree{opts: o} },
	"games": func(o Options) PageSource { return &catalog{opts: o} },
}

// CheckLocaleKind validates a locale provider tag.
func CheckLocaleKind(kind string) error {
	if _, ok := localeProviders[kind]; !ok {
		return fmt.Errorf("%w: locales %q", ErrUnsupportedProvider, kind)
	}
	return nil
}

// CheckPageKind validates a page provider tag.
func CheckPageKind(kind string) error {
	if _, ok := pageProviders[kind]; !ok {
		return fmt.Errorf("%w: pages %q", ErrUnsupportedProvider, kind)
	}
	return nil
}

// NewLocaleSource builds the locale provider registered under kind.
func NewLocaleSource(kind string, opts Options) (LocaleSource, error) {
	build, ok := localeProviders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: locales %q", ErrUnsupportedProvider, kind)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return build(opts), nil
}

// NewPageSource builds the page provider registered under kind.
func NewPageSource(kind string, opts Options) (PageSource, error) {
	build, ok := pageProviders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: pages %q", ErrUnsupportedProvider, kind)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return build(opts), nil
}

func (o Options) normalize() (Options, error) {
	if o.Doer == nil {
		return o, errors.New("source: nil doer")
	}
	if o.Endpoint == "" {
		return o, errors.New("source: empty endpoint")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.UserAgent == "" {
		o.UserAgent = "edge-sitemaps/1.0"
	}
	if o.Retry == (Ceilings{}) {
		o.Retry = DefaultCeilings
	}
	return o, nil
}

// ResolveEndpoint joins a relative endpoint (leading "/") to base and normalizes
// the result. Absolute endpoints are only normalized.
func ResolveEndpoint(base, endpoint string) (string, error) {
	raw := endpoint
	if strings.HasPrefix(endpoint, "/") {
		if base == "" {
			return "", fmt.Errorf("relative endpoint %q needs a base url", endpoint)
		}
		raw = strings.TrimRight(base, "/") + endpoint
	}
	normalized, err := purell.NormalizeURLString(raw,
		purell.FlagsSafe|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveDotSegments|purell.FlagRemoveFragment)
	if err != nil {
		return "", fmt.Errorf("normalize endpoint %q: %w", raw, err)
	}
	return normalized, nil
}

// getJSON performs req under the domain retry loop and decodes a 2xx body into v.
func getJSON[T any](ctx context.Context, o Options, op string, ceiling int, req fetch.Request) (T, error) {
	return retry.Do(ctx, retry.Policy{Op: op, MaxRetries: ceiling, Logger: o.Logger}, func(ctx context.Context) (T, error) {
		var out T
		resp, err := o.Doer.Do(ctx, req)
		if err != nil {
			return out, err
		}
		if !resp.OK() {
			return out, fetch.NewStatusError(resp)
		}
		if err := resp.JSON(&out); err != nil {
			return out, err
		}
		return out, nil
	})
}

func jsonHeaders(userAgent, accept string) http.Header {
	return http.Header{
		"User-Agent":   {userAgent},
		"Content-Type": {"application/json"},
		"Accept":       {accept},
	}
}
