// Package chunker segments page text into bounded chunks at structural
// break points. Segmentation is pure and deterministic: the same input
// always yields the same chunks in the same order.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// BreakKind categorizes the separator a chunk ended at.
type BreakKind int

const (
	// BreakForced means no separator was found (or the tail was emitted whole).
	BreakForced BreakKind = iota
	// BreakMarkdownHeader is a level-2 markdown heading at line start.
	BreakMarkdownHeader
	// BreakParagraph is a blank line.
	BreakParagraph
	// BreakNewline is a single newline.
	BreakNewline
	// BreakSentence is a sentence terminator followed by a space.
	BreakSentence
)

// String returns the break kind name.
func (k BreakKind) String() string {
	switch k {
	case BreakMarkdownHeader:
		return "markdown_header"
	case BreakParagraph:
		return "paragraph"
	case BreakNewline:
		return "newline"
	case BreakSentence:
		return "sentence"
	default:
		return "forced"
	}
}

// Chunk is one segment of the input text. StartPos and EndPos are byte
// offsets into the original text; Content is the trimmed slice between them.
type Chunk struct {
	Content  string
	StartPos int
	EndPos   int
	Kind     BreakKind
	Index    int
}

const (
	// DefaultSize is the target chunk size in bytes.
	DefaultSize = 5000
	// DefaultTolerance stretches the final chunk: a remainder up to
	// Size*Tolerance is emitted whole instead of leaving a tiny tail.
	DefaultTolerance = 1.2
)

// Chunker splits text into chunks of roughly Size bytes, preferring to
// break at markdown headings, then blank lines, then newlines, then
// sentence ends.
type Chunker struct {
	size      int
	tolerance float64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the target chunk size.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithTolerance sets the tail tolerance factor.
func WithTolerance(tol float64) Option {
	return func(c *Chunker) {
		if tol >= 1 {
			c.tolerance = tol
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultSize, tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split segments text into ordered chunks. Empty chunks (all whitespace)
// are discarded; indexes are monotonic over the emitted chunks.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		remaining := len(text) - start

		var end int
		var kind BreakKind
		if float64(remaining) <= float64(c.size)*c.tolerance {
			// Tail is within tolerance: emit the whole remainder.
			end = len(text)
			kind = BreakForced
		} else {
			end, kind = findBreak(text, start, start+c.size)
		}

		content := strings.TrimSpace(text[start:end])
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:  content,
				StartPos: start,
				EndPos:   end,
				Kind:     kind,
				Index:    index,
			})
			index++
		}

		start = end
	}

	return chunks
}

// findBreak scans [start, end) backwards for the highest-priority separator
// and returns the break position plus its kind. Falls back to a forced
// break at end, adjusted to a rune boundary.
func findBreak(text string, start, end int) (int, BreakKind) {
	window := text[start:end]

	// Priority 1: markdown level-2 heading; break before the heading line.
	if pos := strings.LastIndex(window, "\n## "); pos > 0 {
		return start + pos + 1, BreakMarkdownHeader
	}

	// Priority 2: blank line; break after it.
	if pos := strings.LastIndex(window, "\n\n"); pos > 0 {
		return start + pos + 2, BreakParagraph
	}

	// Priority 3: single newline.
	if pos := strings.LastIndex(window, "\n"); pos > 0 {
		return start + pos + 1, BreakNewline
	}

	// Priority 4: sentence terminator followed by a space.
	for _, punct := range []string{". ", "! ", "? "} {
		if pos := strings.LastIndex(window, punct); pos > 0 {
			return start + pos + 2, BreakSentence
		}
	}

	// No separator: force a break, backing up to a rune boundary so a
	// multi-byte character is never split.
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	return end, BreakForced
}
