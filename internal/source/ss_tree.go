package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/retry"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

type ssPage struct {
	ID         json.RawMessage `json:"id"`
	Title      string          `json:"title"`
	Categories []string        `json:"categories"`
	Path       string          `json:"path"`
	Layout     string          `json:"layout"`
	Children   []ssPage        `json:"children"`
}

type ssPageDetails struct {
	Path   string                     `json:"path"`
	Blocks map[string]json.RawMessage `json:"blocks"`
}

// treeNode is an arena entry; children reference other entries by index.
type treeNode struct {
	id         string
	path       string
	categories []string
	children   []int
}

type ssTree struct {
	opts Options
}

func (s *ssTree) Candidates(ctx context.Context, f *filter.Compiled) ([]string, error) {
	roots, err := getJSON[[]ssPage](ctx, s.opts, "fetch pages", s.opts.Retry.Pages, fetch.Request{
		Method: http.MethodGet,
		URL:    s.opts.Endpoint,
		Header: jsonHeaders(s.opts.UserAgent, ssAccept),
	})
	if err != nil {
		return nil, err
	}

	arena, top := buildArena(roots)
	var paths []string
	walk(arena, top, func(n *treeNode) {
		if f.KeepPage(filter.Candidate{ID: n.id, Path: n.path, Categories: n.categories}) {
			paths = append(paths, n.path)
		}
	})
	s.opts.Logger.Info("page tree listed",
		zap.String("endpoint", s.opts.Endpoint),
		zap.Int("nodes", len(arena)),
		zap.Int("candidates", len(paths)),
	)
	return paths, nil
}

// buildArena copies the decoded tree into a flat arena without recursion.
func buildArena(roots []ssPage) ([]treeNode, []int) {
	type pending struct {
		page   *ssPage
		parent int
	}
	var arena []treeNode
	top := make([]int, 0, len(roots))
	queue := make([]pending, 0, len(roots))
	for i := range roots {
		queue = append(queue, pending{page: &roots[i], parent: -1})
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		idx := len(arena)
		arena = append(arena, treeNode{
			id:         rawID(item.page.ID),
			path:       item.page.Path,
			categories: item.page.Categories,
		})
		if item.parent < 0 {
			top = append(top, idx)
		} else {
			arena[item.parent].children = append(arena[item.parent].children, idx)
		}
		for i := range item.page.Children {
			queue = append(queue, pending{page: &item.page.Children[i], parent: idx})
		}
	}
	return arena, top
}

// walk visits every node depth-first in pre-order using an explicit stack.
func walk(arena []treeNode, top []int, visit func(*treeNode)) {
	stack := make([]int, 0, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		stack = append(stack, top[i])
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &arena[idx]
		visit(node)
		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, node.children[i])
		}
	}
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *ssTree) Verify(ctx context.Context, locales, paths []string) ([]sitemap.LocalePaths, error) {
	visible := make([][]bool, len(locales))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.DetailConcurrency > 0 {
		g.SetLimit(s.opts.DetailConcurrency)
	}
	for li, locale := range locales {
		visible[li] = make([]bool, len(paths))
		for pi, path := range paths {
			g.Go(func() error {
				ok, err := s.visible(gctx, locale, path)
				if err != nil {
					return err
				}
				visible[li][pi] = ok
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]sitemap.LocalePaths, 0, len(locales))
	for li, locale := range locales {
		lp := sitemap.LocalePaths{Locale: locale}
		for pi, path := range paths {
			if visible[li][pi] {
				lp.Paths = append(lp.Paths, path)
			}
		}
		s.opts.Logger.Info("pages verified",
			zap.String("locale", locale),
			zap.Int("candidates", len(paths)),
			zap.Int("visible", len(lp.Paths)),
		)
		out = append(out, lp)
	}
	return out, nil
}

// visible fetches page details for one locale. A 404 means the page does not
// exist in that locale. The root page is requested as <endpoint>/.
func (s *ssTree) visible(ctx context.Context, locale, path string) (bool, error) {
	detailURL := strings.TrimRight(s.opts.Endpoint, "/") + "/" + strings.TrimLeft(path, "/") +
		"?locale=" + url.QueryEscape(locale)
	header := jsonHeaders(s.opts.UserAgent, ssAccept)
	header.Set("Accept-Language", locale)
	header.Set("Locale_override", "forbidden")

	return retry.Do(ctx, retry.Policy{Op: "fetch page details " + path, MaxRetries: s.opts.Retry.Details, Logger: s.opts.Logger},
		func(ctx context.Context) (bool, error) {
			resp, err := s.opts.Doer.Do(ctx, fetch.Request{Method: http.MethodGet, URL: detailURL, Header: header})
			if err != nil {
				return false, err
			}
			if resp.StatusCode == http.StatusNotFound {
				s.opts.Logger.Debug("page absent in locale", zap.String("path", path), zap.String("locale", locale))
				return false, nil
			}
			if !resp.OK() {
				return false, fetch.NewStatusError(resp)
			}
			var details ssPageDetails
			if err := resp.JSON(&details); err != nil {
				return false, err
			}
			if truthy(details.Blocks["noindex"]) || truthy(details.Blocks["invisible_route"]) {
				s.opts.Logger.Debug("page hidden in locale", zap.String("path", path), zap.String("locale", locale))
				return false, nil
			}
			return true, nil
		})
}

// truthy follows JSON-value truthiness: null, false, "", and 0 are false.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
