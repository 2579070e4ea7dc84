package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultAllowedPrefix gates which discovered links are persisted and
// scheduled.
const DefaultAllowedPrefix = "https://developer.apple.com/documentation/"

// Canonicalize normalizes a URL into the page's natural key: scheme, host,
// and path lowercased, trailing path slashes stripped, query and fragment
// dropped. Canonicalization is idempotent.
func Canonicalize(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Path = strings.TrimRight(strings.ToLower(parsed.Path), "/")
	parsed.RawPath = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String(), nil
}

// filterAllowed canonicalizes links, keeps those under the allowed prefix,
// and deduplicates while preserving first-seen order.
func filterAllowed(links []string, prefix string) []string {
	seen := make(map[string]bool, len(links))
	var kept []string

	for _, link := range links {
		canon, err := Canonicalize(link)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(canon, prefix) {
			continue
		}
		if seen[canon] {
			continue
		}
		seen[canon] = true
		kept = append(kept, canon)
	}

	return kept
}
