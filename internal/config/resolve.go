package config

import (
	"fmt"

	"github.com/JakeFAU/edge-sitemaps/internal/cloudflare"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
	"github.com/JakeFAU/edge-sitemaps/internal/source"
)

// ResolvedModule is a module with every inheritable setting filled in.
type ResolvedModule struct {
	Name               string                `yaml:"name"`
	BaseURL            string                `yaml:"base_url"`
	LocalesAPI         APIConfig             `yaml:"locales_api"`
	PagesAPI           APIConfig             `yaml:"pages_api"`
	Filter             filter.Filter         `yaml:"filter"`
	Replace            []sitemap.Replacement `yaml:"replace,omitempty"`
	Proxy              *ProxyConfig          `yaml:"proxy,omitempty"`
	LocaleBaseURLs     map[string]string     `yaml:"locale_base_urls,omitempty"`
	ForceSplitByLocale bool                  `yaml:"force_split_by_locale"`
}

// Spec returns the builder view of the module.
func (m ResolvedModule) Spec() sitemap.ModuleSpec {
	return sitemap.ModuleSpec{
		Name:               m.Name,
		BaseURL:            m.BaseURL,
		LocaleBaseURLs:     m.LocaleBaseURLs,
		Replace:            m.Replace,
		ForceSplitByLocale: m.ForceSplitByLocale,
	}
}

// ResolvedWorker is a worker with its modules resolved.
type ResolvedWorker struct {
	Name      string           `yaml:"name"`
	AccountID string           `yaml:"account_id"`
	Auth      cloudflare.Auth  `yaml:"auth"`
	Proxy     *ProxyConfig     `yaml:"proxy,omitempty"`
	Modules   []ResolvedModule `yaml:"modules"`
}

// Resolve applies "most specific wins": module settings, then the worker's
// config block, then the global defaults.
func (c Config) Resolve() ([]ResolvedWorker, error) {
	seen := make(map[string]bool, len(c.Workers))
	out := make([]ResolvedWorker, 0, len(c.Workers))
	for i, w := range c.Workers {
		if w.Name == "" {
			return nil, fmt.Errorf("workers[%d]: name is required", i)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("worker %s: duplicate name", w.Name)
		}
		seen[w.Name] = true
		rw, err := c.resolveWorker(w)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, nil
}

func (c Config) resolveWorker(w WorkerConfig) (ResolvedWorker, error) {
	site := c.Site
	if w.Config != nil {
		site = overlay(c.Site, *w.Config)
	}
	if len(site.Modules) == 0 {
		return ResolvedWorker{}, fmt.Errorf("worker %s: no modules configured", w.Name)
	}

	rw := ResolvedWorker{Name: w.Name, AccountID: w.AccountID, Auth: w.Auth, Proxy: site.Proxy}
	names := make(map[string]bool, len(site.Modules))
	for _, m := range site.Modules {
		rm, err := resolveModule(site, m)
		if err != nil {
			return ResolvedWorker{}, fmt.Errorf("worker %s: %w", w.Name, err)
		}
		if names[rm.Name] {
			return ResolvedWorker{}, fmt.Errorf("worker %s: duplicate module %s", w.Name, rm.Name)
		}
		names[rm.Name] = true
		rw.Modules = append(rw.Modules, rm)
	}
	return rw, nil
}

// overlay returns parent with every field set in child replacing it.
func overlay(parent, child Site) Site {
	out := parent
	if child.BaseURL != "" {
		out.BaseURL = child.BaseURL
	}
	if child.Filter != nil {
		out.Filter = child.Filter
	}
	if child.Replace != nil {
		out.Replace = child.Replace
	}
	if child.Proxy != nil {
		out.Proxy = child.Proxy
	}
	if child.LocaleBaseURLs != nil {
		out.LocaleBaseURLs = child.LocaleBaseURLs
	}
	if child.Modules != nil {
		out.Modules = child.Modules
	}
	return out
}

func resolveModule(site Site, m ModuleConfig) (ResolvedModule, error) {
	if m.Name == "" {
		return ResolvedModule{}, fmt.Errorf("module name is required")
	}
	rm := ResolvedModule{
		Name:               m.Name,
		BaseURL:            site.BaseURL,
		LocalesAPI:         m.LocalesAPI,
		PagesAPI:           m.PagesAPI,
		Replace:            site.Replace,
		Proxy:              site.Proxy,
		LocaleBaseURLs:     site.LocaleBaseURLs,
		ForceSplitByLocale: m.ForceSplitByLocale,
	}
	if site.Filter != nil {
		rm.Filter = *site.Filter
	}
	if m.BaseURL != "" {
		rm.BaseURL = m.BaseURL
	}
	if m.Filter != nil {
		rm.Filter = *m.Filter
	}
	if m.Replace != nil {
		rm.Replace = m.Replace
	}
	if m.Proxy != nil {
		rm.Proxy = m.Proxy
	}
	if m.LocaleBaseURLs != nil {
		rm.LocaleBaseURLs = m.LocaleBaseURLs
	}

	if rm.BaseURL == "" {
		return ResolvedModule{}, fmt.Errorf("module %s: %w", m.Name, ErrMissingBaseURL)
	}
	if err := source.CheckLocaleKind(rm.LocalesAPI.Type); err != nil {
		return ResolvedModule{}, fmt.Errorf("module %s: %w", m.Name, err)
	}
	if err := source.CheckPageKind(rm.PagesAPI.Type); err != nil {
		return ResolvedModule{}, fmt.Errorf("module %s: %w", m.Name, err)
	}
	if rm.LocalesAPI.URL == "" || rm.PagesAPI.URL == "" {
		return ResolvedModule{}, fmt.Errorf("module %s: locales_api.url and pages_api.url are required", m.Name)
	}
	if err := rm.Filter.Validate(); err != nil {
		return ResolvedModule{}, fmt.Errorf("module %s: %w", m.Name, err)
	}
	return rm, nil
}

// Redacted returns a copy safe to print: credentials are masked.
func (w ResolvedWorker) Redacted() ResolvedWorker {
	out := w
	out.Auth = cloudflare.Auth{
		Token: mask(w.Auth.Token),
		Email: w.Auth.Email,
		Key:   mask(w.Auth.Key),
	}
	out.Proxy = redactProxy(w.Proxy)
	out.Modules = make([]ResolvedModule, len(w.Modules))
	for i, m := range w.Modules {
		m.Proxy = redactProxy(m.Proxy)
		out.Modules[i] = m
	}
	return out
}

func redactProxy(p *ProxyConfig) *ProxyConfig {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Password = mask(cp.Password)
	return &cp
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
