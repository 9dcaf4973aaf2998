package sitemap

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultLocale is served without a locale segment.
const DefaultLocale = "en"

// GenerateURL joins base, locale segment and path with exactly one slash between
// segments. The default locale gets no segment.
func GenerateURL(base, path, locale string) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteByte('/')
	if locale != DefaultLocale {
		b.WriteString(locale)
		b.WriteByte('/')
	}
	b.WriteString(strings.TrimLeft(path, "/"))

	u, err := url.Parse(b.String())
	if err != nil {
		return "", fmt.Errorf("build url for %q in %q: %w", path, locale, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("build url for %q in %q: base %q is not absolute", path, locale, base)
	}
	return u.String(), nil
}
