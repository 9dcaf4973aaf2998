package sitemap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xhtmlNS   = "http://www.w3.org/1999/xhtml"
)

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNs   string     `xml:"xmlns,attr"`
	XHTML   string     `xml:"xmlns:xhtml,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string      `xml:"loc"`
	Priority   string      `xml:"priority"`
	ChangeFreq string      `xml:"changefreq"`
	Links      []xhtmlLink `xml:"xhtml:link"`
}

type xhtmlLink struct {
	Rel      string `xml:"rel,attr"`
	HrefLang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	XMLNs    string       `xml:"xmlns,attr"`
	XHTML    string       `xml:"xmlns:xhtml,attr"`
	Sitemaps []indexEntry `xml:"sitemap"`
}

type indexEntry struct {
	Loc string `xml:"loc"`
}

// locator resolves the base URL for a locale.
type locator func(locale string) string

func renderURLSet(pages []Page, baseFor locator) (string, error) {
	set := urlSet{XMLNs: sitemapNS, XHTML: xhtmlNS, URLs: make([]urlEntry, 0, len(pages))}
	for _, page := range pages {
		loc, err := GenerateURL(baseFor(page.Lang), page.Path, page.Lang)
		if err != nil {
			return "", err
		}
		entry := urlEntry{
			Loc:        loc,
			Priority:   strconv.FormatFloat(page.Priority, 'f', 1, 64),
			ChangeFreq: page.ChangeFrequency,
		}
		for _, alt := range page.Alternates {
			href, err := GenerateURL(baseFor(alt.Lang), alt.Path, alt.Lang)
			if err != nil {
				return "", err
			}
			entry.Links = append(entry.Links, xhtmlLink{Rel: "alternate", HrefLang: alt.Lang, Href: href})
		}
		set.URLs = append(set.URLs, entry)
	}
	return marshalDocument(set)
}

func renderIndex(locs []string) (string, error) {
	idx := sitemapIndex{XMLNs: sitemapNS, XHTML: xhtmlNS, Sitemaps: make([]indexEntry, 0, len(locs))}
	for _, loc := range locs {
		idx.Sitemaps = append(idx.Sitemaps, indexEntry{Loc: loc})
	}
	return marshalDocument(idx)
}

func marshalDocument(v any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode sitemap xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}
