// Package filter implements the include/exclude rule-sets that narrow the
// locales and pages of a sitemap module.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// ErrConflictingRules is returned when a filter declares both include and exclude rules.
var ErrConflictingRules = errors.New("filter: include and exclude are mutually exclusive")

// Rules names zero or more predicate categories. An empty list is treated as absent.
type Rules struct {
	IDs        []string `mapstructure:"ids" yaml:"ids,omitempty"`
	URLs       []string `mapstructure:"urls" yaml:"urls,omitempty"`
	Categories []string `mapstructure:"categories" yaml:"categories,omitempty"`
	Providers  []string `mapstructure:"providers" yaml:"providers,omitempty"`
	Locales    []string `mapstructure:"locales" yaml:"locales,omitempty"`
}

// Filter holds at most one of Include or Exclude.
type Filter struct {
	Include *Rules `mapstructure:"include" yaml:"include,omitempty"`
	Exclude *Rules `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// Validate reports configuration errors without compiling the filter.
func (f Filter) Validate() error {
	_, err := Compile(f)
	return err
}

// Candidate is the provider-neutral view of a listed page that rules are tested against.
type Candidate struct {
	ID         string
	Path       string
	Categories []string
	Provider   string
}

type mode int

const (
	modeNone mode = iota
	modeInclude
	modeExclude
)

// Compiled is a validated Filter with its URL patterns compiled. It is immutable and
// safe for concurrent use.
type Compiled struct {
	mode     mode
	rules    Rules
	patterns []*regexp.Regexp
}

// Compile validates f and compiles its URL patterns.
func Compile(f Filter) (*Compiled, error) {
	if f.Include != nil && f.Exclude != nil {
		return nil, ErrConflictingRules
	}
	c := &Compiled{}
	switch {
	case f.Include != nil:
		c.mode = modeInclude
		c.rules = *f.Include
	case f.Exclude != nil:
		c.mode = modeExclude
		c.rules = *f.Exclude
	default:
		return c, nil
	}
	for _, raw := range c.rules.URLs {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("filter: compile url pattern %q: %w", raw, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and literals.
func MustCompile(f Filter) *Compiled {
	c, err := Compile(f)
	if err != nil {
		panic(err)
	}
	return c
}

// KeepPage reports whether a page candidate survives the filter. Only page categories
// (ids, urls, categories, providers) take part; a rule-set naming none of them does
// not constrain pages.
func (c *Compiled) KeepPage(cand Candidate) bool {
	if c == nil || c.mode == modeNone || !c.hasPageRules() {
		return true
	}
	return c.keep(c.pageMatches(cand))
}

// KeepLocale reports whether a locale code survives the filter. Only the locales
// category takes part.
func (c *Compiled) KeepLocale(code string) bool {
	if c == nil || c.mode == modeNone || len(c.rules.Locales) == 0 {
		return true
	}
	return c.keep(slices.Contains(c.rules.Locales, code))
}

// Pages returns the candidates that survive, preserving order.
func (c *Compiled) Pages(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, cand := range cands {
		if c.KeepPage(cand) {
			out = append(out, cand)
		}
	}
	return out
}

// Locales returns the codes that survive, preserving order.
func (c *Compiled) Locales(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if c.KeepLocale(code) {
			out = append(out, code)
		}
	}
	return out
}

func (c *Compiled) keep(satisfied bool) bool {
	if c.mode == modeInclude {
		return satisfied
	}
	return !satisfied
}

func (c *Compiled) hasPageRules() bool {
	r := c.rules
	return len(r.IDs) > 0 || len(r.URLs) > 0 || len(r.Categories) > 0 || len(r.Providers) > 0
}

func (c *Compiled) pageMatches(cand Candidate) bool {
	if cand.ID != "" && slices.Contains(c.rules.IDs, cand.ID) {
		return true
	}
	for _, re := range c.patterns {
		if re.MatchString(cand.Path) {
			return true
		}
	}
	for _, category := range cand.Categories {
		if slices.Contains(c.rules.Categories, category) {
			return true
		}
	}
	return cand.Provider != "" && slices.Contains(c.rules.Providers, cand.Provider)
}
