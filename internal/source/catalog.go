package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

const (
	catalogAccept   = "application/vnd.s.v2+json"
	catalogPageSize = 100
)

type catalogSort struct {
	Direction string `json:"direction"`
	Type      string `json:"type"`
}

type catalogQuery struct {
	Device                         string      `json:"device"`
	Page                           int         `json:"page"`
	WithoutTerritorialRestrictions bool        `json:"without_territorial_restrictions"`
	Sort                           catalogSort `json:"sort"`
	PageSize                       int         `json:"page_size"`
}

type catalogItem struct {
	Identifier string   `json:"identifier"`
	Title      string   `json:"title"`
	SEOTitle   string   `json:"seo_title"`
	Provider   string   `json:"provider"`
	Categories []string `json:"categories"`
}

type catalogPage struct {
	Data       []catalogItem `json:"data"`
	Pagination struct {
		CurrentPage int  `json:"current_page"`
		NextPage    *int `json:"next_page"`
		TotalPages  int  `json:"total_pages"`
		TotalCount  int  `json:"total_count"`
	} `json:"pagination"`
}

type catalog struct {
	opts Options
}

func (c *catalog) Candidates(ctx context.Context, f *filter.Compiled) ([]string, error) {
	var paths []string
	listed := 0
	for page := 1; ; {
		body, err := json.Marshal(catalogQuery{
			Device:                         "desktop",
			Page:                           page,
			WithoutTerritorialRestrictions: true,
			Sort:                           catalogSort{Direction: "ASC", Type: "global"},
			PageSize:                       catalogPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("encode catalog query: %w", err)
		}
		header := jsonHeaders(c.opts.UserAgent, catalogAccept)
		header.Set("Pragma", "no-cache")
		res, err := getJSON[catalogPage](ctx, c.opts, fmt.Sprintf("fetch catalog page %d", page), c.opts.Retry.Catalog, fetch.Request{
			Method: http.MethodPost,
			URL:    c.opts.Endpoint,
			Header: header,
			Body:   body,
		})
		if err != nil {
			return nil, err
		}
		c.opts.Logger.Debug("catalog page fetched", zap.Int("page", page), zap.Int("items", len(res.Data)))

		for _, item := range res.Data {
			listed++
			if item.SEOTitle == "" {
				c.opts.Logger.Debug("catalog item without seo title skipped", zap.String("identifier", item.Identifier))
				continue
			}
			cand := filter.Candidate{
				ID:         item.Identifier,
				Path:       item.SEOTitle,
				Categories: item.Categories,
				Provider:   item.Provider,
			}
			if f.KeepPage(cand) {
				paths = append(paths, sitemap.CatalogSegment+"/"+item.SEOTitle)
			}
		}

		next := res.Pagination.NextPage
		if next == nil {
			break
		}
		if *next <= page {
			return nil, fmt.Errorf("catalog pagination did not advance: page %d reports next page %d", page, *next)
		}
		page = *next
	}
	c.opts.Logger.Info("catalog listed",
		zap.String("endpoint", c.opts.Endpoint),
		zap.Int("items", listed),
		zap.Int("candidates", len(paths)),
	)
	return paths, nil
}

// Verify exposes the same catalog for every locale.
func (c *catalog) Verify(_ context.Context, locales, paths []string) ([]sitemap.LocalePaths, error) {
	out := make([]sitemap.LocalePaths, 0, len(locales))
	for _, locale := range locales {
		out = append(out, sitemap.LocalePaths{Locale: locale, Paths: append([]string(nil), paths...)})
	}
	return out, nil
}
