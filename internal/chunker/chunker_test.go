package chunker

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	c := New()
	if got := c.Split(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestSplit_ShortText(t *testing.T) {
	c := New()

	chunks := c.Split("Hello world.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	got := chunks[0]
	if got.Content != "Hello world." {
		t.Errorf("expected content %q, got %q", "Hello world.", got.Content)
	}
	if got.Kind != BreakForced {
		t.Errorf("expected forced break, got %v", got.Kind)
	}
	if got.Index != 0 {
		t.Errorf("expected index 0, got %d", got.Index)
	}
}

func TestSplit_MarkdownHeaders(t *testing.T) {
	c := New(WithSize(20))

	input := "# Title\n\nIntro.\n\n## A\nAlpha\n\n## B\nBeta"
	chunks := c.Split(input)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Every chunk after the first should begin at a ## heading.
	for _, chunk := range chunks[1:] {
		if !strings.HasPrefix(chunk.Content, "## ") {
			t.Errorf("chunk %d does not start at a heading: %q", chunk.Index, chunk.Content)
		}
	}
	if chunks[0].Kind != BreakMarkdownHeader {
		t.Errorf("expected markdown_header break on chunk 0, got %v", chunks[0].Kind)
	}
}

func TestSplit_ParagraphBreak(t *testing.T) {
	c := New(WithSize(25), WithTolerance(1))

	input := "First paragraph here.\n\nSecond paragraph follows with more text."
	chunks := c.Split(input)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Kind != BreakParagraph {
		t.Errorf("expected paragraph break, got %v", chunks[0].Kind)
	}
	if chunks[0].Content != "First paragraph here." {
		t.Errorf("unexpected first chunk: %q", chunks[0].Content)
	}
}

func TestSplit_SentenceBreak(t *testing.T) {
	c := New(WithSize(30), WithTolerance(1))

	input := "One sentence goes here. Another sentence arrives after it without any newline at all."
	chunks := c.Split(input)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Kind != BreakSentence {
		t.Errorf("expected sentence break, got %v", chunks[0].Kind)
	}
	if !strings.HasSuffix(chunks[0].Content, ".") {
		t.Errorf("first chunk should end at sentence: %q", chunks[0].Content)
	}
}

func TestSplit_ForcedBreak(t *testing.T) {
	c := New(WithSize(10), WithTolerance(1))

	input := strings.Repeat("a", 35)
	chunks := c.Split(input)

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks[:3] {
		if chunk.Kind != BreakForced {
			t.Errorf("chunk %d: expected forced break, got %v", chunk.Index, chunk.Kind)
		}
		if len(chunk.Content) != 10 {
			t.Errorf("chunk %d: expected 10 bytes, got %d", chunk.Index, len(chunk.Content))
		}
	}
}

func TestSplit_ForcedBreakRuneBoundary(t *testing.T) {
	c := New(WithSize(10), WithTolerance(1))

	// 3-byte runes; a naive byte-offset break would split one.
	input := strings.Repeat("世", 20)
	chunks := c.Split(input)

	for _, chunk := range chunks {
		for _, r := range chunk.Content {
			if r == '�' {
				t.Fatalf("chunk %d contains a split rune: %q", chunk.Index, chunk.Content)
			}
		}
	}
}

func TestSplit_TailTolerance(t *testing.T) {
	c := New(WithSize(100))

	// 110 bytes: within 100*1.2, so a single chunk.
	input := strings.Repeat("x", 110)
	chunks := c.Split(input)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk within tolerance, got %d", len(chunks))
	}
	if chunks[0].Kind != BreakForced {
		t.Errorf("expected forced break on tail, got %v", chunks[0].Kind)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(WithSize(40))

	input := "Alpha beta gamma.\n\nDelta epsilon zeta eta theta.\n## Iota\nKappa lambda mu nu xi omicron pi rho sigma tau."
	first := c.Split(input)
	second := c.Split(input)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	c := New(WithSize(50))

	input := "The quick brown fox jumps over the lazy dog.\n\nPack my box with five dozen liquor jugs.\nHow vexingly quick daft zebras jump!\n\n## Section\nSphinx of black quartz, judge my vow. The five boxing wizards jump quickly over everything in sight."
	chunks := c.Split(input)

	// Concatenating chunks must preserve every non-whitespace character
	// exactly once, in order.
	var rebuilt strings.Builder
	for _, chunk := range chunks {
		rebuilt.WriteString(chunk.Content)
	}

	strip := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}
	if strip(rebuilt.String()) != strip(input) {
		t.Error("round-trip lost or duplicated non-whitespace content")
	}
}

func TestSplit_IndexesMonotonic(t *testing.T) {
	c := New(WithSize(30))

	input := strings.Repeat("word word word.\n", 20)
	chunks := c.Split(input)

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk at position %d has index %d", i, chunk.Index)
		}
		if len(chunk.Content) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
	}
}
