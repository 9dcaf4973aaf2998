package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

// Discover lists locales and page candidates concurrently, then verifies every
// candidate in every locale.
func Discover(ctx context.Context, locales LocaleSource, pages PageSource, f *filter.Compiled) ([]sitemap.LocalePaths, error) {
	var (
		codes      []string
		candidates []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		codes, err = locales.Locales(gctx, f)
		if err != nil {
			return fmt.Errorf("list locales: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		candidates, err = pages.Candidates(gctx, f)
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	listings, err := pages.Verify(ctx, codes, candidates)
	if err != nil {
		return nil, fmt.Errorf("verify pages: %w", err)
	}
	return listings, nil
}
