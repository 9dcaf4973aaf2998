package sitemap

import (
	"fmt"
	"strings"
)

// PaginationLimit is the page count at which a module is split per locale, and
// the maximum number of pages in one per-locale chunk.
const PaginationLimit = 1000

// IndexName is the route name of the sitemap index document.
const IndexName = "sitemap-index"

// Sitemap is a named, serialized document.
type Sitemap struct {
	Name    string
	XML     string
	BaseURL string
}

// Replacement is a literal substitution applied to serialized XML.
type Replacement struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Value   string `mapstructure:"value" yaml:"value"`
}

// ModuleSpec carries everything BuildModule needs from a resolved module.
type ModuleSpec struct {
	Name               string
	BaseURL            string
	LocaleBaseURLs     map[string]string
	Replace            []Replacement
	ForceSplitByLocale bool
}

func (m ModuleSpec) baseFor(locale string) string {
	if base, ok := m.LocaleBaseURLs[locale]; ok && base != "" {
		return base
	}
	return m.BaseURL
}

// BuildModule serializes a module's pages. Modules below PaginationLimit pages
// become one sitemap named after the module; larger ones, or any module with
// ForceSplitByLocale, are chunked per locale.
func BuildModule(spec ModuleSpec, pages []Page) ([]Sitemap, error) {
	if spec.BaseURL == "" {
		return nil, fmt.Errorf("module %s: missing base url", spec.Name)
	}
	if len(pages) < PaginationLimit && !spec.ForceSplitByLocale {
		doc, err := spec.render(pages)
		if err != nil {
			return nil, err
		}
		return []Sitemap{{Name: spec.Name, XML: doc, BaseURL: spec.BaseURL}}, nil
	}

	var sitemaps []Sitemap
	for _, group := range groupByLocale(pages) {
		chunks := (len(group.pages) + PaginationLimit - 1) / PaginationLimit
		for i := range chunks {
			end := min((i+1)*PaginationLimit, len(group.pages))
			name := fmt.Sprintf("sitemap-%s-%s", spec.Name, group.locale)
			if chunks > 1 {
				name = fmt.Sprintf("%s-%d", name, i+1)
			}
			doc, err := spec.render(group.pages[i*PaginationLimit : end])
			if err != nil {
				return nil, err
			}
			sitemaps = append(sitemaps, Sitemap{Name: name, XML: doc, BaseURL: spec.BaseURL})
		}
	}
	return sitemaps, nil
}

func (m ModuleSpec) render(pages []Page) (string, error) {
	doc, err := renderURLSet(pages, m.baseFor)
	if err != nil {
		return "", fmt.Errorf("module %s: %w", m.Name, err)
	}
	for _, r := range m.Replace {
		if r.Pattern == "" {
			continue
		}
		doc = strings.ReplaceAll(doc, r.Pattern, r.Value)
	}
	return doc, nil
}

type localeGroup struct {
	locale string
	pages  []Page
}

// groupByLocale splits pages into per-locale runs in first-seen locale order.
func groupByLocale(pages []Page) []localeGroup {
	var groups []localeGroup
	index := make(map[string]int)
	for _, p := range pages {
		i, ok := index[p.Lang]
		if !ok {
			i = len(groups)
			index[p.Lang] = i
			groups = append(groups, localeGroup{locale: p.Lang})
		}
		groups[i].pages = append(groups[i].pages, p)
	}
	return groups
}

// Location is the absolute URL a sitemap is served at.
func (s Sitemap) Location() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + s.Name + ".xml"
}

// Route is the request path a sitemap is served at.
func (s Sitemap) Route() string {
	return "/" + s.Name + ".xml"
}

// BuildIndex serializes a sitemap index listing every sitemap's location.
func BuildIndex(sitemaps []Sitemap) (string, error) {
	locs := make([]string, 0, len(sitemaps))
	for _, s := range sitemaps {
		locs = append(locs, s.Location())
	}
	return renderIndex(locs)
}
