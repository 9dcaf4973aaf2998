// Package script assembles deployable worker scripts that serve sitemap documents.
package script

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

// Mode selects how documents are shipped with the script.
type Mode string

const (
	// ModeRouter inlines every document into the script source.
	ModeRouter Mode = "router"
	// ModeBindings ships documents as plain-text bindings plus a JSON manifest.
	ModeBindings Mode = "bindings"
)

// IndexRoute serves the sitemap index from the first unit.
const IndexRoute = "/sitemap-index.xml"

const (
	manifestBinding = "SITEMAPS_MANIFEST"
	indexBinding    = "SITEMAP_INDEX"
)

var routerPlaceholder = regexp.MustCompile(`\{\s*/\* SITEMAPS_ROUTER \*/\s*\}`)

// ErrPlaceholderNotFound is returned when a template lacks its injection marker.
var ErrPlaceholderNotFound = errors.New("script template placeholder not found")

//go:embed templates/*.js
var templates embed.FS

// Binding is a named value attached to an uploaded script.
type Binding struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

// Script is upload-ready content for one unit.
type Script struct {
	Name     string
	Source   string
	Bindings []Binding
	// Routes maps request paths to the documents the script serves.
	Routes map[string]string
}

// Assembler injects unit documents into a template.
type Assembler struct {
	mode     Mode
	template string
}

// New loads the template for mode. An empty templatePath selects the embedded default.
func New(mode Mode, templatePath string) (*Assembler, error) {
	if mode == "" {
		mode = ModeRouter
	}
	if mode != ModeRouter && mode != ModeBindings {
		return nil, fmt.Errorf("unknown deployment mode %q", mode)
	}

	var (
		raw []byte
		err error
	)
	if templatePath != "" {
		raw, err = os.ReadFile(templatePath)
	} else {
		raw, err = templates.ReadFile("templates/" + string(mode) + ".js")
	}
	if err != nil {
		return nil, fmt.Errorf("load %s template: %w", mode, err)
	}
	tpl := string(raw)

	switch mode {
	case ModeRouter:
		if !routerPlaceholder.MatchString(tpl) {
			return nil, fmt.Errorf("%w: router marker in %s", ErrPlaceholderNotFound, templateName(templatePath, mode))
		}
	case ModeBindings:
		if !strings.Contains(tpl, manifestBinding) {
			return nil, fmt.Errorf("%w: %s reference in %s", ErrPlaceholderNotFound, manifestBinding, templateName(templatePath, mode))
		}
	}
	return &Assembler{mode: mode, template: tpl}, nil
}

func templateName(path string, mode Mode) string {
	if path != "" {
		return path
	}
	return "embedded " + string(mode) + " template"
}

// Mode reports the assembler's deployment mode.
func (a *Assembler) Mode() Mode {
	return a.mode
}

// Assemble builds the script for unit. The first unit also serves indexXML.
func (a *Assembler) Assemble(unit sitemap.Unit, indexXML string) (Script, error) {
	routes := make(map[string]string, len(unit.Slots)+1)
	if unit.Index == 1 {
		routes[IndexRoute] = indexXML
	}
	for _, slot := range unit.Slots {
		routes[slot.Sitemap.Route()] = slot.Sitemap.XML
	}

	out := Script{Name: unit.Name, Routes: routes}
	switch a.mode {
	case ModeBindings:
		out.Source = a.template
		out.Bindings = bindingsFor(unit, indexXML)
	default:
		table, err := encodeRoutes(routes)
		if err != nil {
			return Script{}, err
		}
		loc := routerPlaceholder.FindStringIndex(a.template)
		if loc == nil {
			return Script{}, ErrPlaceholderNotFound
		}
		out.Source = a.template[:loc[0]] + table + a.template[loc[1]:]
	}
	return out, nil
}

func bindingsFor(unit sitemap.Unit, indexXML string) []Binding {
	manifest := make(map[string]string, len(unit.Slots)+1)
	bindings := make([]Binding, 0, len(unit.Slots)+2)
	if unit.Index == 1 {
		bindings = append(bindings, Binding{Type: "plain_text", Name: indexBinding, Text: indexXML})
		manifest[IndexRoute] = indexBinding
	}
	for _, slot := range unit.Slots {
		bindings = append(bindings, Binding{Type: "plain_text", Name: slot.Name, Text: slot.Sitemap.XML})
		manifest[slot.Sitemap.Route()] = slot.Name
	}
	return append(bindings, Binding{Type: "json", Name: manifestBinding, JSON: manifest})
}

func encodeRoutes(routes map[string]string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(routes); err != nil {
		return "", fmt.Errorf("encode routes: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
