// Package sitemap turns per-locale page listings into cross-referenced sitemap
// documents, partitions them, and lays them out across deployable worker units.
package sitemap

import "strings"

// LocalePaths is the filtered, provider-ordered path list for one locale.
type LocalePaths struct {
	Locale string
	Paths  []string
}

// Alternate is a same-path variant of a page in another locale.
type Alternate struct {
	Path string
	Lang string
}

// Page is one (path, locale) entry of a sitemap.
type Page struct {
	Path            string
	Lang            string
	Priority        float64
	ChangeFrequency string
	Alternates      []Alternate
}

// Change frequencies used by the fixed metadata policy.
const (
	FrequencyAlways = "always"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// CatalogSegment is the top-level path segment that marks catalog pages.
const CatalogSegment = "games"

// Metadata returns priority and change frequency for path, derived from its
// first segment.
func Metadata(path string) (float64, string) {
	first, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	switch first {
	case "":
		return 1.0, FrequencyAlways
	case CatalogSegment:
		return 0.8, FrequencyDaily
	default:
		return 0.6, FrequencyWeekly
	}
}

// Aggregate expands per-locale path lists into pages carrying hreflang alternates.
// Output follows input order: locales first, then paths in provider order.
// Listings repeating a locale are merged at the locale's first position, and
// repeated paths within one locale are collapsed to their first occurrence.
func Aggregate(listings []LocalePaths) []Page {
	listings = mergeLocales(listings)
	locales := make(map[string][]string)
	deduped := make([][]string, len(listings))
	total := 0
	for i, listing := range listings {
		seen := make(map[string]struct{}, len(listing.Paths))
		for _, p := range listing.Paths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			deduped[i] = append(deduped[i], p)
			locales[p] = append(locales[p], listing.Locale)
		}
		total += len(deduped[i])
	}

	pages := make([]Page, 0, total)
	for i, listing := range listings {
		for _, p := range deduped[i] {
			priority, freq := Metadata(p)
			page := Page{
				Path:            p,
				Lang:            listing.Locale,
				Priority:        priority,
				ChangeFrequency: freq,
			}
			for _, other := range locales[p] {
				if other == listing.Locale {
					continue
				}
				page.Alternates = append(page.Alternates, Alternate{Path: p, Lang: other})
			}
			pages = append(pages, page)
		}
	}
	return pages
}

func mergeLocales(listings []LocalePaths) []LocalePaths {
	at := make(map[string]int, len(listings))
	merged := make([]LocalePaths, 0, len(listings))
	for _, listing := range listings {
		i, ok := at[listing.Locale]
		if !ok {
			at[listing.Locale] = len(merged)
			merged = append(merged, LocalePaths{Locale: listing.Locale, Paths: append([]string(nil), listing.Paths...)})
			continue
		}
		merged[i].Paths = append(merged[i].Paths, listing.Paths...)
	}
	return merged
}
