package fetch

import (
	"strings"
	"testing"
)

const samplePage = `<html><body>
<main id="app-main">
<h1><a href="/documentation/swiftui">SwiftUI</a></h1>
<p>Declare the user interface. <a href="/documentation/swiftui/view">View</a> is the basic building block.</p>
<img src="/diagram.png" alt="diagram">
<h2>Topics</h2>
<p>Navigation stuff that should be cut.</p>
</main>
<nav>
<a href="/documentation/swiftui/text">Text</a>
<a href="https://example.org/elsewhere">Elsewhere</a>
<a href="#main-content">Skip</a>
<a href="mailto:docs@example.com">Mail</a>
</nav>
</body></html>`

func TestRender_Links(t *testing.T) {
	result, err := render(samplePage, "https://developer.apple.com/documentation/swiftui", "", "")
	if err != nil {
		t.Fatalf("render() failed: %v", err)
	}

	internal := make(map[string]bool)
	for _, link := range result.Links.Internal {
		internal[link.Href] = true
	}
	if !internal["https://developer.apple.com/documentation/swiftui/view"] {
		t.Errorf("relative link not resolved as internal: %v", result.Links.Internal)
	}
	if !internal["https://developer.apple.com/documentation/swiftui/text"] {
		t.Errorf("nav link missing from internal set: %v", result.Links.Internal)
	}

	if len(result.Links.External) != 1 || result.Links.External[0].Href != "https://example.org/elsewhere" {
		t.Errorf("unexpected external links: %v", result.Links.External)
	}

	for _, link := range append(result.Links.Internal, result.Links.External...) {
		if strings.HasPrefix(link.Href, "mailto:") || strings.Contains(link.Href, "#") {
			t.Errorf("non-http or fragment link leaked: %s", link.Href)
		}
	}
}

func TestRender_SelectorRestriction(t *testing.T) {
	result, err := render(samplePage, "https://developer.apple.com/documentation/swiftui", "#app-main", "")
	if err != nil {
		t.Fatalf("render() failed: %v", err)
	}

	if !strings.Contains(result.Text, "Declare the user interface") {
		t.Errorf("main content missing from text:\n%s", result.Text)
	}
	if strings.Contains(result.Text, "Navigation stuff") {
		t.Errorf("content after ## Topics not truncated:\n%s", result.Text)
	}
	if strings.Contains(result.Text, "diagram.png") || strings.Contains(result.Text, "![") {
		t.Errorf("image syntax leaked into text:\n%s", result.Text)
	}
	if strings.Contains(result.Text, "](") {
		t.Errorf("inline link syntax leaked into text:\n%s", result.Text)
	}
	// Links still come from the full document.
	if len(result.Links.Internal) < 3 {
		t.Errorf("expected links from full document, got %v", result.Links.Internal)
	}
}

func TestRender_SelectorMiss(t *testing.T) {
	result, err := render(samplePage, "https://developer.apple.com/documentation/swiftui", "#no-such-node", "")
	if err != nil {
		t.Fatalf("render() failed: %v", err)
	}
	if result.Text != "" {
		t.Errorf("expected empty text for missing selector, got %q", result.Text)
	}
	if len(result.Links.Internal) == 0 {
		t.Error("links should still be extracted when the selector misses")
	}
}

func TestRender_NotFoundPhrase(t *testing.T) {
	page := `<html><body><p>The page you're looking for can't be found.</p></body></html>`

	result, err := render(page, "https://developer.apple.com/documentation/gone", "", DefaultNotFoundPhrase)
	if err != nil {
		t.Fatalf("render() failed: %v", err)
	}
	if !result.NotFound {
		t.Error("expected NotFound for page carrying the 404 phrase")
	}

	result, err = render(samplePage, "https://developer.apple.com/documentation/swiftui", "", DefaultNotFoundPhrase)
	if err != nil {
		t.Fatalf("render() failed: %v", err)
	}
	if result.NotFound {
		t.Error("regular page flagged as NotFound")
	}
}

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		truncate bool
		want     string
	}{
		{
			name:  "strips images",
			input: "before ![alt text](https://img.example/x.png) after",
			want:  "before  after",
		},
		{
			name:  "heading loses URL",
			input: "## [View](https://developer.apple.com/documentation/swiftui/view)",
			want:  "## View",
		},
		{
			name:  "inline link keeps anchor text",
			input: "See [the docs](https://example.com/docs) for details.",
			want:  "See the docs for details.",
		},
		{
			name:     "truncates at Topics",
			input:    "Intro.\n## Topics\nhidden",
			truncate: true,
			want:     "Intro.",
		},
		{
			name:     "truncates at See Also",
			input:    "Intro.\n## See Also\nhidden",
			truncate: true,
			want:     "Intro.",
		},
		{
			name:  "no truncation without flag",
			input: "Intro.\n## Topics\nvisible",
			want:  "Intro.\n## Topics\nvisible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := postProcess(tt.input, tt.truncate)
			if got != tt.want {
				t.Errorf("postProcess() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPermanentSessionErr(t *testing.T) {
	if isPermanentSessionErr(nil) {
		t.Error("nil error is not permanent")
	}
}
