package source

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
)

const ssAccept = "application/vnd.softswiss.v1+json"

type ssLocale struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	NameInLocale string `json:"name_in_locale"`
	Default      bool   `json:"default"`
}

type ssLocales struct {
	opts Options
}

func (s *ssLocales) Locales(ctx context.Context, f *filter.Compiled) ([]string, error) {
	raw, err := getJSON[[]ssLocale](ctx, s.opts, "fetch locales", s.opts.Retry.Locales, fetch.Request{
		Method: http.MethodGet,
		URL:    s.opts.Endpoint,
		Header: jsonHeaders(s.opts.UserAgent, ssAccept),
	})
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(raw))
	for _, l := range raw {
		if l.Code == "" {
			continue
		}
		codes = append(codes, l.Code)
	}
	kept := f.Locales(codes)
	s.opts.Logger.Info("locales listed",
		zap.String("endpoint", s.opts.Endpoint),
		zap.Int("listed", len(codes)),
		zap.Strings("kept", kept),
	)
	return kept, nil
}
