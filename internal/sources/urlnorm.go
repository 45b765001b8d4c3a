// Package sources provides the shared source infrastructure the crawler
// cohort relies on: canonical URL normalization and dedup, domain authority
// scoring, and the cross-crawler entity context coordinator.
package sources

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// trackingParams are stripped during normalization. The set is the
// compatibility-critical list; it is not user-extensible at runtime.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
}

// Normalize returns the canonical form of a URL used as the dedup key:
// lowercase IDNA host, default port removed, fragment removed, tracking
// params stripped, remaining query params sorted by name (multi-value order
// preserved), dot segments resolved, trailing slash dropped unless the path
// is "/". The result is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("unparseable url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	port := u.Port()
	switch {
	case port == "":
	case u.Scheme == "http" && port == "80":
		port = ""
	case u.Scheme == "https" && port == "443":
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	u.RawQuery = normalizeQuery(u.Query())

	u.Path = normalizePath(u.EscapedPath())
	u.RawPath = ""

	return u.String(), nil
}

// normalizeQuery strips tracking params and re-encodes the remainder sorted
// lexicographically by name, preserving multi-value order within a name.
func normalizeQuery(values url.Values) string {
	for name := range values {
		if _, tracked := trackingParams[name]; tracked {
			delete(values, name)
		}
	}
	if len(values) == 0 {
		return ""
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		for _, v := range values[name] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// normalizePath resolves "." and ".." segments and drops the trailing slash
// unless the path is exactly "/".
func normalizePath(escaped string) string {
	if escaped == "" {
		return ""
	}
	cleaned := path.Clean(escaped)
	if cleaned == "." {
		return ""
	}
	// path.Clean drops the trailing slash already; it also collapses "" to
	// ".", handled above. Decode back into the Path field's unescaped form.
	unescaped, err := url.PathUnescape(cleaned)
	if err != nil {
		return cleaned
	}
	return unescaped
}

// DomainOf extracts the lowercase registered host from a canonical URL.
// Returns "" for malformed input.
func DomainOf(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
