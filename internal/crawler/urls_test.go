package crawler

import (
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "mixed case with query and fragment",
			input: "HTTPS://Developer.Apple.COM/Documentation/SwiftUI/?q=1#top",
			want:  "https://developer.apple.com/documentation/swiftui",
		},
		{
			name:  "trailing slashes stripped",
			input: "https://developer.apple.com/documentation/swiftui///",
			want:  "https://developer.apple.com/documentation/swiftui",
		},
		{
			name:  "already canonical",
			input: "https://developer.apple.com/documentation/swiftui/view",
			want:  "https://developer.apple.com/documentation/swiftui/view",
		},
		{
			name:  "surrounding whitespace",
			input: "  https://developer.apple.com/documentation/uikit  ",
			want:  "https://developer.apple.com/documentation/uikit",
		},
		{
			name:    "relative url rejected",
			input:   "/documentation/swiftui",
			wantErr: true,
		},
		{
			name:    "garbage rejected",
			input:   "://nope",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonicalize(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Developer.Apple.COM/Documentation/SwiftUI/?q=1#top",
		"https://developer.apple.com/documentation/swiftui/view",
		"http://Example.org/A/B/C/",
	}

	for _, input := range inputs {
		once, err := Canonicalize(input)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", input, err)
		}
		twice, err := Canonicalize(once)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestFilterAllowed(t *testing.T) {
	links := []string{
		"https://developer.apple.com/documentation/swiftui/view",
		"HTTPS://DEVELOPER.APPLE.COM/documentation/swiftui/view", // duplicate after canon
		"https://developer.apple.com/documentation/uikit/",
		"https://developer.apple.com/design/",       // outside prefix
		"https://example.org/documentation/swiftui", // wrong host
		"not a url",
	}

	got := filterAllowed(links, DefaultAllowedPrefix)

	want := []string{
		"https://developer.apple.com/documentation/swiftui/view",
		"https://developer.apple.com/documentation/uikit",
	}
	if len(got) != len(want) {
		t.Fatalf("filterAllowed() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("filterAllowed()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
