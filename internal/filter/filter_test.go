package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRejectsBothModes(t *testing.T) {
	t.Parallel()

	_, err := Compile(Filter{Include: &Rules{}, Exclude: &Rules{}})
	require.ErrorIs(t, err, ErrConflictingRules)
}

func TestCompileRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := Compile(Filter{Exclude: &Rules{URLs: []string{"games/("}}})
	require.Error(t, err)
}

func TestKeepPage(t *testing.T) {
	t.Parallel()

	slots := Candidate{ID: "7", Path: "games/all/slots", Categories: []string{"slots"}, Provider: "netent"}
	promo := Candidate{ID: "9", Path: "promotions", Categories: []string{"marketing"}}

	tests := []struct {
		name   string
		filter Filter
		cand   Candidate
		want   bool
	}{
		{"no filter keeps", Filter{}, slots, true},
		{"exclude by url", Filter{Exclude: &Rules{URLs: []string{"games/all"}}}, slots, false},
		{"exclude by url miss", Filter{Exclude: &Rules{URLs: []string{"games/all"}}}, promo, true},
		{"exclude by id", Filter{Exclude: &Rules{IDs: []string{"9"}}}, promo, false},
		{"include by category", Filter{Include: &Rules{Categories: []string{"slots"}}}, slots, true},
		{"include by category miss", Filter{Include: &Rules{Categories: []string{"slots"}}}, promo, false},
		{"include is OR across categories", Filter{Include: &Rules{
			Categories: []string{"nothing"},
			Providers:  []string{"netent"},
		}}, slots, true},
		{"locale-only include leaves pages alone", Filter{Include: &Rules{Locales: []string{"en"}}}, promo, true},
		{"locale-only exclude leaves pages alone", Filter{Exclude: &Rules{Locales: []string{"no"}}}, promo, true},
		{"empty lists are absent", Filter{Exclude: &Rules{URLs: []string{}, IDs: []string{}}}, promo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := Compile(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.KeepPage(tt.cand))
		})
	}
}

func TestKeepLocale(t *testing.T) {
	t.Parallel()

	codes := []string{"en", "no", "fi", "de"}

	inc := MustCompile(Filter{Include: &Rules{Locales: []string{"fi", "en"}}})
	assert.Equal(t, []string{"en", "fi"}, inc.Locales(codes))

	exc := MustCompile(Filter{Exclude: &Rules{Locales: []string{"no"}}})
	assert.Equal(t, []string{"en", "fi", "de"}, exc.Locales(codes))

	urlsOnly := MustCompile(Filter{Include: &Rules{URLs: []string{"games"}}})
	assert.Equal(t, codes, urlsOnly.Locales(codes))

	var none *Compiled
	assert.Equal(t, codes, none.Locales(codes))
}

func TestFilterIsIdempotent(t *testing.T) {
	t.Parallel()

	cands := []Candidate{
		{Path: ""},
		{Path: "games/all"},
		{Path: "games/all/slots"},
		{Path: "promotions", Categories: []string{"marketing"}},
		{Path: "about"},
	}
	for _, f := range []Filter{
		{Include: &Rules{URLs: []string{"^games"}, Categories: []string{"marketing"}}},
		{Exclude: &Rules{URLs: []string{"games/all"}}},
	} {
		c := MustCompile(f)
		once := c.Pages(cands)
		assert.Equal(t, once, c.Pages(once))
	}
}
