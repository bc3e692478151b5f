// Package memory turns stale conversation history into per-day summary
// memories so prompts stay small while long-term context survives.
package memory

import (
	"context"
	"time"

	mnemoerrors "mnemo/internal/errors"
	"mnemo/internal/llm"
	"mnemo/internal/logging"
	"mnemo/internal/markup"
	"mnemo/internal/observability"
	"mnemo/internal/prompt"
	"mnemo/internal/session"
)

// DefaultTriggerThreshold is how many appended turns accumulate before a
// consolidation pass runs automatically.
const DefaultTriggerThreshold = 30

// Summarization runs against the session's primary provider only, with
// its own conservative sampling settings.
const (
	summaryMaxTokens   = 300
	summaryTemperature = 0.3
)

// generator is the slice of the dispatch engine consolidation needs.
type generator interface {
	Generate(ctx context.Context, primary, backup session.ProviderID, req llm.Request, config mnemoerrors.RetryConfig) (*llm.Result, error)
}

// Consolidator runs the day-bucketed summarization pass.
type Consolidator struct {
	dispatch  generator
	metrics   *observability.Metrics
	logger    *logging.Logger
	threshold int
}

// NewConsolidator creates a consolidator over the dispatch engine.
// threshold <= 0 selects the default. metrics may be nil.
func NewConsolidator(dispatch *llm.Dispatcher, metrics *observability.Metrics, threshold int) *Consolidator {
	if threshold <= 0 {
		threshold = DefaultTriggerThreshold
	}
	return &Consolidator{
		dispatch:  dispatch,
		metrics:   metrics,
		logger:    logging.NewComponentLogger("memory"),
		threshold: threshold,
	}
}

// Due reports whether the session has accumulated enough turns for an
// automatic pass.
func (c *Consolidator) Due(s *session.Session) bool {
	return s.MessagesSinceConsolidation >= c.threshold
}

// dayGroup is one calendar day's slice of the history, in order.
type dayGroup struct {
	day   string
	turns []session.Turn
}

// groupByDay buckets the history by day key, preserving first-seen day
// order and turn order within each day.
func groupByDay(history []session.Turn) []dayGroup {
	var groups []dayGroup
	index := map[string]int{}
	for _, turn := range history {
		day := turn.Day()
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, dayGroup{day: day})
		}
		groups[i].turns = append(groups[i].turns, turn)
	}
	return groups
}

// Consolidate summarizes each history day that needs it and shrinks the
// history down to today's turns. Days that already carry a non-empty
// memory are skipped unless they are today, which is always re-summarized
// from its current turns. A failed day is logged and its raw turns stay
// in history so the next trigger can retry it; the pass continues with
// the rest. Returns how many day summaries were written.
//
// The caller persists the session afterwards; Consolidate only mutates it.
func (c *Consolidator) Consolidate(ctx context.Context, s *session.Session, now time.Time) int {
	today := session.DayKey(now)
	groups := groupByDay(s.History)

	summarized := 0
	failed := map[string]bool{}
	var passErr error
	for _, group := range groups {
		if group.day != today {
			if mem, ok := s.Memories[group.day]; ok && mem.Text != "" {
				continue
			}
		}

		text, err := c.summarizeDay(ctx, s, group)
		if err != nil {
			c.logger.Warn("Summarizing %s failed: %v", group.day, err)
			failed[group.day] = true
			passErr = err
			continue
		}
		s.SetMemory(group.day, text, now)
		summarized++
	}

	// History keeps today's turns, plus the turns of past days whose
	// summarization failed: a day must stay represented somewhere, and
	// keeping its raw turns lets the next pass retry it.
	kept := make([]session.Turn, 0, len(s.History))
	for _, turn := range s.History {
		day := turn.Day()
		if day == today || failed[day] {
			kept = append(kept, turn)
		}
	}
	s.History = kept
	s.MessagesSinceConsolidation = 0

	c.logger.Info("Consolidation pass: %d/%d days summarized, %d turns kept",
		summarized, len(groups), len(kept))
	c.metrics.RecordConsolidation(ctx, summarized, passErr)
	return summarized
}

// summarizeDay makes one single-attempt, primary-only summarizer call.
// The background is every other day's memory in insertion order.
func (c *Consolidator) summarizeDay(ctx context.Context, s *session.Session, group dayGroup) (string, error) {
	var background []session.MemoryEntry
	for _, entry := range s.MemoryEntries() {
		if entry.Day == group.day {
			continue
		}
		background = append(background, entry)
	}

	req := llm.Request{
		Fragments:     prompt.ComposeSummary(background, group.turns),
		MaxTokens:     summaryMaxTokens,
		Temperature:   summaryTemperature,
		Summarization: true,
	}

	result, err := c.dispatch.Generate(ctx, s.PrimaryProvider, "", req, mnemoerrors.SingleAttemptConfig())
	if err != nil {
		return "", err
	}
	// Stored memories are interpolated into HTML views later, so they go
	// through the full sanitizer, not just whitespace cleanup.
	return markup.Sanitize(result.Text), nil
}
