package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKeepsAllowedTags(t *testing.T) {
	in := "Use <b>bold</b> and <i>italics</i>, maybe <code>go fmt</code>."
	assert.Equal(t, in, Sanitize(in))
}

func TestSanitizeEscapesDisallowedTags(t *testing.T) {
	out := Sanitize(`<script>alert(1)</script> and <div class="x">boxed</div>`)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<div")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "boxed")
}

func TestSanitizeEscapesBareAngleBrackets(t *testing.T) {
	out := Sanitize("for i < 10 and x > 3")
	assert.Equal(t, "for i &lt; 10 and x &gt; 3", out)
}

func TestSanitizeMixedContent(t *testing.T) {
	out := Sanitize("<b>keep</b> <h1>drop</h1>")
	assert.Equal(t, "<b>keep</b> &lt;h1&gt;drop&lt;/h1&gt;", out)
}

func TestCollapseBlankLines(t *testing.T) {
	out := CollapseBlankLines("a\n\n\n\nb\n\n\nc\n")
	assert.Equal(t, "a\n\nb\n\nc", out)
}

func TestChunkShortTextUnchanged(t *testing.T) {
	chunks := Chunk("hello")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestChunkEmptyText(t *testing.T) {
	assert.Empty(t, Chunk("   "))
}

func TestChunkSplitsAtParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 100)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := ChunkAt(text, 600)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 600)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	// No words are lost across the splits.
	joined := strings.Join(chunks, " ")
	assert.Equal(t, strings.Count(text, "word"), strings.Count(joined, "word"))
}

func TestChunkMultibyteNearBoundary(t *testing.T) {
	// A newline just under the limit, in text where byte and rune
	// offsets diverge.
	text := strings.Repeat("я", 3995) + "\n" + strings.Repeat("я", 500)
	chunks := ChunkAt(text, 4000)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("я", 3995), chunks[0])
	assert.Equal(t, strings.Repeat("я", 500), chunks[1])
}

func TestChunkMultibyteHardCut(t *testing.T) {
	text := strings.Repeat("日本語テキスト", 1000) // 6000 runes, no break points
	chunks := ChunkAt(text, 4000)

	require.Len(t, chunks, 2)
	total := ""
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 4000)
		total += c
	}
	assert.Equal(t, text, total)
}

func TestChunkMultibytePrefersSpaces(t *testing.T) {
	word := strings.Repeat("ко", 5) + " " // 11 runes
	text := strings.Repeat(word, 100)     // 1100 runes
	chunks := ChunkAt(text, 400)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 400)
		// Splits land on spaces: every chunk holds only whole words.
		for _, w := range strings.Fields(c) {
			assert.Equal(t, strings.Repeat("ко", 5), w)
		}
	}
}

func TestChunkHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 9000)
	chunks := Chunk(text)
	require.Len(t, chunks, 3)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), ChunkLimit)
		total += len(c)
	}
	assert.Equal(t, 9000, total)
}
