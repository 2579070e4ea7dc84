package fetch

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

var (
	imagePattern       = regexp.MustCompile(`!\[.*?\]\([^)]+\)`)
	headingLinkPattern = regexp.MustCompile(`^(\s*)(#{1,6})\s*\[(.*?)\]\(.*?\)`)
	inlineLinkPattern  = regexp.MustCompile(`\[([^\]]+)\]\((?:[^)\\]|\\.)*\)`)
)

// render turns a fetched HTML document into a Result: markdown text
// (optionally restricted to a CSS selector), the link set split into
// internal and external, and the soft-404 flag. Links are always taken
// from the full document regardless of the selector.
func render(html, pageURL, selector, notFoundPhrase string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse fetched document: %w", err)
	}

	result := &Result{
		Links:    extractLinks(doc, pageURL),
		NotFound: notFoundPhrase != "" && strings.Contains(doc.Text(), notFoundPhrase),
	}

	fragment := html
	truncate := false
	if selector != "" {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			// Selector missed: treat as an empty page rather than an error.
			return result, nil
		}
		fragment, err = goquery.OuterHtml(sel)
		if err != nil {
			return nil, fmt.Errorf("extract selection: %w", err)
		}
		truncate = true
	}

	text, err := md.ConvertString(fragment)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	result.Text = postProcess(text, truncate)
	return result, nil
}

// extractLinks collects anchor targets from the document, resolving
// relative hrefs against the page URL and partitioning by origin.
// Fragment-only anchors are dropped.
func extractLinks(doc *goquery.Document, pageURL string) Links {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var links Links
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}

		target, err := url.Parse(href)
		if err != nil {
			return
		}
		if !target.IsAbs() {
			if base == nil {
				return
			}
			target = base.ResolveReference(target)
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}

		resolved := target.String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true

		if base != nil && strings.EqualFold(target.Host, base.Host) {
			links.Internal = append(links.Internal, Link{Href: resolved})
		} else {
			links.External = append(links.External, Link{Href: resolved})
		}
	})

	return links
}

// postProcess cleans converted markdown: image syntax is removed, heading
// lines lose their URLs, inline links collapse to their anchor text. With
// truncate set, output stops at the first "## Topics" or "## See Also"
// heading, which open the navigational sections past the primary content.
func postProcess(text string, truncate bool) string {
	lines := strings.Split(text, "\n")
	clean := make([]string, 0, len(lines))

	for _, line := range lines {
		line = imagePattern.ReplaceAllString(line, "")

		if m := headingLinkPattern.FindStringSubmatch(line); m != nil {
			line = m[1] + m[2] + " " + m[3]
		}

		line = inlineLinkPattern.ReplaceAllString(line, "$1")

		if truncate {
			trimmed := strings.TrimSpace(line)
			if trimmed == "## Topics" || trimmed == "## See Also" {
				break
			}
		}

		clean = append(clean, line)
	}

	return strings.TrimSpace(strings.Join(clean, "\n"))
}
