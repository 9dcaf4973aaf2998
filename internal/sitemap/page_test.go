package sitemap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path     string
		priority float64
		freq     string
	}{
		{path: "", priority: 1.0, freq: FrequencyAlways},
		{path: "/", priority: 1.0, freq: FrequencyAlways},
		{path: "games", priority: 0.8, freq: FrequencyDaily},
		{path: "games/all/slots", priority: 0.8, freq: FrequencyDaily},
		{path: "/games/book-of-dead", priority: 0.8, freq: FrequencyDaily},
		{path: "promotions", priority: 0.6, freq: FrequencyWeekly},
		{path: "gamesx/foo", priority: 0.6, freq: FrequencyWeekly},
	}
	for _, tc := range cases {
		priority, freq := Metadata(tc.path)
		assert.Equal(t, tc.priority, priority, tc.path)
		assert.Equal(t, tc.freq, freq, tc.path)
	}
}

func TestAggregateBuildsSymmetricAlternates(t *testing.T) {
	t.Parallel()

	pages := Aggregate([]LocalePaths{
		{Locale: "en", Paths: []string{"", "games/a", "promo"}},
		{Locale: "no", Paths: []string{"", "games/a"}},
		{Locale: "de", Paths: []string{"", "promo"}},
	})
	require.Len(t, pages, 7)

	byKey := make(map[string]Page)
	for _, p := range pages {
		byKey[p.Lang+"|"+p.Path] = p
	}
	for _, p := range pages {
		for _, alt := range p.Alternates {
			assert.NotEqual(t, p.Lang, alt.Lang, "self alternate on %s", p.Path)
			other, ok := byKey[alt.Lang+"|"+alt.Path]
			require.True(t, ok, "alternate %s|%s has no page", alt.Lang, alt.Path)
			assert.Contains(t, other.Alternates, Alternate{Path: p.Path, Lang: p.Lang})
		}
	}

	assert.ElementsMatch(t, []Alternate{{Lang: "no"}, {Lang: "de"}}, byKey["en|"].Alternates)
	assert.Equal(t, []Alternate{{Path: "games/a", Lang: "en"}}, byKey["no|games/a"].Alternates)
	assert.Equal(t, []Alternate{{Path: "promo", Lang: "de"}}, byKey["en|promo"].Alternates)
	assert.Equal(t, 0.8, byKey["no|games/a"].Priority)
}

func TestAggregatePreservesOrderAndCollapsesDuplicates(t *testing.T) {
	t.Parallel()

	pages := Aggregate([]LocalePaths{
		{Locale: "no", Paths: []string{"b", "a", "b"}},
		{Locale: "en", Paths: []string{"a"}},
	})
	got := make([]string, 0, len(pages))
	for _, p := range pages {
		got = append(got, p.Lang+":"+p.Path)
	}
	assert.Equal(t, []string{"no:b", "no:a", "en:a"}, got)
	assert.Empty(t, pages[0].Alternates)
	assert.Equal(t, []Alternate{{Path: "a", Lang: "en"}}, pages[1].Alternates)
}

func TestAggregateMergesRepeatedLocales(t *testing.T) {
	t.Parallel()

	pages := Aggregate([]LocalePaths{
		{Locale: "en", Paths: []string{"a"}},
		{Locale: "no", Paths: []string{"a"}},
		{Locale: "no", Paths: []string{"a", "b"}},
	})
	got := make([]string, 0, len(pages))
	for _, p := range pages {
		got = append(got, p.Lang+":"+p.Path)
	}
	assert.Equal(t, []string{"en:a", "no:a", "no:b"}, got)
	assert.Equal(t, []Alternate{{Path: "a", Lang: "no"}}, pages[0].Alternates)
	assert.Equal(t, []Alternate{{Path: "a", Lang: "en"}}, pages[1].Alternates)
	assert.Empty(t, pages[2].Alternates)
}

func TestAggregateScalesWithInvertedIndex(t *testing.T) {
	t.Parallel()

	const paths = 2000
	listings := make([]LocalePaths, 0, 5)
	for _, loc := range []string{"en", "no", "de", "fi", "fr"} {
		lp := LocalePaths{Locale: loc}
		for i := range paths {
			lp.Paths = append(lp.Paths, fmt.Sprintf("games/g-%d", i))
		}
		listings = append(listings, lp)
	}
	pages := Aggregate(listings)
	require.Len(t, pages, 5*paths)
	for _, p := range pages {
		require.Len(t, p.Alternates, 4)
	}
}
