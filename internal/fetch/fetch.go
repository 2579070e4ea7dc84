// Package fetch retrieves documentation pages through a pool of headless
// browser sessions (or a plain HTTP fetcher for static sources) and turns
// them into markdown text plus a structured link set.
package fetch

import (
	"context"
	"time"
)

// DefaultNotFoundPhrase is the body text that marks a soft 404 on the
// documentation site.
const DefaultNotFoundPhrase = "The page you're looking for can't be found."

// DefaultUserAgent mimics a current desktop browser build.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0"

// Link is a single hyperlink target.
type Link struct {
	Href string
}

// Links partitions discovered links by origin relative to the fetched page.
type Links struct {
	Internal []Link
	External []Link
}

// Result is the outcome of one successful fetch. NotFound marks a page
// whose body carries the site's "page not found" phrase; it is a signal,
// not an error.
type Result struct {
	Text     string
	Links    Links
	NotFound bool
}

// Fetcher serves fetch requests. An empty selector extracts the whole
// page; otherwise extraction is restricted to the first match of the CSS
// selector. Links are always collected from the full document.
type Fetcher interface {
	Fetch(ctx context.Context, url, selector string) (*Result, error)
	Close() error
}

// browserHeaders returns the header set sent with every navigation,
// matching what the impersonated browser would send.
func browserHeaders() map[string]any {
	return map[string]any{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Cache-Control":             "no-cache",
		"Pragma":                    "no-cache",
		"Sec-CH-UA":                 `"Not)A;Brand";v="8", "Chromium";v="138", "Microsoft Edge";v="138"`,
		"Sec-CH-UA-Mobile":          "?0",
		"Sec-CH-UA-Platform":        `"macOS"`,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
}

const (
	defaultPageTimeout = 5000 * time.Millisecond
	defaultDelay       = 5 * time.Second
	defaultRetries     = 2
)
