// Package llm provides the uniform adapter boundary over generation
// providers and the dispatch engine that orchestrates retry and
// primary/backup fallback around them.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FragmentKind distinguishes the prompt fragment flavors so adapters can
// shape them without re-parsing text.
type FragmentKind int

const (
	// FragmentMemory is one day's consolidated summary.
	FragmentMemory FragmentKind = iota
	// FragmentTurn is one history turn or the incoming turn.
	FragmentTurn
	// FragmentCue is the assistant-name continuation cue.
	FragmentCue
)

// Fragment is one ordered piece of a composed prompt. Adapters must
// preserve fragment order when shaping their native requests.
type Fragment struct {
	Kind      FragmentKind
	Label     string // day key for memories, speaker for turns, assistant name for the cue
	Timestamp string // display timestamp, turns only
	Text      string
}

// Render flattens the fragment into a single text line for providers
// without structured-content support.
func (f Fragment) Render() string {
	switch f.Kind {
	case FragmentMemory:
		return fmt.Sprintf("Memory of %s: %s", f.Label, f.Text)
	case FragmentCue:
		return f.Label + ":"
	default:
		if f.Timestamp != "" {
			return fmt.Sprintf("[%s] %s: %s", f.Timestamp, f.Label, f.Text)
		}
		return fmt.Sprintf("%s: %s", f.Label, f.Text)
	}
}

// RenderFragments joins an ordered fragment sequence into one text block.
func RenderFragments(fragments []Fragment) string {
	lines := make([]string, 0, len(fragments))
	for _, f := range fragments {
		lines = append(lines, f.Render())
	}
	return strings.Join(lines, "\n")
}

// Request carries everything an adapter needs for one generation call.
type Request struct {
	Fragments   []Fragment
	MaxTokens   int
	Temperature float64

	// Summarization switches the persona instruction to the consolidation
	// prompt. Set only by the memory consolidator.
	Summarization bool
}

// Client is the uniform capability every provider adapter implements.
// Adapters are stateless from the caller's perspective: construction and
// teardown are cheap, and no state is carried across calls.
type Client interface {
	// Generate produces text for the ordered fragments. Each adapter owns
	// its own request shaping and invisibly prefixes the persona
	// instruction.
	Generate(ctx context.Context, req Request) (string, error)

	// Name returns the provider identifier.
	Name() string

	// Close releases any provider-side handles. Safe to call after a
	// failed Generate.
	Close() error
}

// Config carries provider connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// defaultCallTimeout bounds a provider call when the incoming context has
// no deadline of its own.
const defaultCallTimeout = 120 * time.Second

// ensureDeadline applies the adapter timeout when the caller did not set
// one.
func ensureDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, has := ctx.Deadline(); has {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
