// Package markup prepares model output for the chat platform: it reduces
// arbitrary text to the HTML subset the platform accepts, collapses
// blank-line runs, and splits long replies into sendable chunks.
package markup

import (
	"regexp"
	"strings"
)

// ChunkLimit is the platform's per-message rune budget, kept a little
// under the hard 4096 cap to leave room for closing tags.
const ChunkLimit = 4000

// allowedTags is the platform's inline HTML whitelist.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
	"a": true,
	"blockquote": true,
	"tg-spoiler": true,
}

var (
	tagPattern       = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)(\s[^<>]*)?/?>`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	trailingWSOnLine = regexp.MustCompile(`[ \t]+\n`)
)

// Sanitize reduces text to the allowed HTML subset. Disallowed tags are
// escaped so they display literally; bare angle brackets outside valid
// tags are escaped too.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for {
		loc := tagPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.WriteString(escapeText(rest))
			break
		}
		b.WriteString(escapeText(rest[:loc[0]]))
		tag := rest[loc[0]:loc[1]]
		name := strings.ToLower(rest[loc[2]:loc[3]])
		if allowedTags[name] {
			b.WriteString(tag)
		} else {
			b.WriteString(escapeText(tag))
		}
		rest = rest[loc[1]:]
	}

	return CollapseBlankLines(b.String())
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// CollapseBlankLines trims the text and squeezes runs of blank lines down
// to one empty line.
func CollapseBlankLines(text string) string {
	text = trailingWSOnLine.ReplaceAllString(text, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk splits text into pieces of at most ChunkLimit runes, preferring
// to break at paragraph and line boundaries.
func Chunk(text string) []string {
	return ChunkAt(text, ChunkLimit)
}

// ChunkAt is Chunk with a caller-chosen limit.
func ChunkAt(text string, limit int) []string {
	if limit <= 0 {
		limit = ChunkLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := breakPoint(runes, limit)
		chunk := strings.TrimRight(string(runes[:cut]), "\n")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ') {
			runes = runes[1:]
		}
	}
	return chunks
}

// breakPoint finds the best split position at or before limit: paragraph
// break, then newline, then space, then a hard cut. Positions are rune
// indices into the slice, found by scanning backwards so multibyte text
// never shifts the cut.
func breakPoint(runes []rune, limit int) int {
	newline, space := -1, -1
	for i := limit - 1; i > limit/2; i-- {
		switch runes[i] {
		case '\n':
			if runes[i-1] == '\n' {
				return i - 1
			}
			if newline < 0 {
				newline = i
			}
		case ' ':
			if space < 0 {
				space = i
			}
		}
	}
	if newline > 0 {
		return newline
	}
	if space > 0 {
		return space
	}
	return limit
}
