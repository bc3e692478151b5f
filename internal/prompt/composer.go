// Package prompt builds the ordered fragment sequence a generation call
// sees: all consolidated memories, a bounded window of today's turns,
// the incoming message, and the continuation cue.
package prompt

import (
	"time"

	"mnemo/internal/llm"
	"mnemo/internal/session"
	"mnemo/internal/token"
)

// HistoryWindow caps how many of today's past turns enter the prompt.
const HistoryWindow = 20

// Compose builds the prompt fragments for one incoming message. It reads
// the session but never mutates it; the caller appends the turns after a
// successful generation.
//
// Order: every memory in insertion order, then the last HistoryWindow of
// today's turns oldest-first, then the incoming message as a turn, then
// the assistant cue.
func Compose(s *session.Session, speaker, text string, at time.Time) []llm.Fragment {
	memories := s.MemoryEntries()
	today := s.TodayTurns(at)
	if len(today) > HistoryWindow {
		today = today[len(today)-HistoryWindow:]
	}

	fragments := make([]llm.Fragment, 0, len(memories)+len(today)+2)
	for _, entry := range memories {
		fragments = append(fragments, llm.Fragment{
			Kind:  llm.FragmentMemory,
			Label: entry.Day,
			Text:  entry.Memory.Text,
		})
	}
	for _, turn := range today {
		fragments = append(fragments, turnFragment(turn))
	}
	fragments = append(fragments, llm.Fragment{
		Kind:      llm.FragmentTurn,
		Label:     speaker,
		Timestamp: session.FormatTime(at),
		Text:      text,
	})
	fragments = append(fragments, llm.Fragment{
		Kind:  llm.FragmentCue,
		Label: llm.AssistantName,
	})
	return fragments
}

// ComposeSummary builds the consolidation prompt for one day: the other
// days' memories as background, then the day's full transcript, then the
// cue. The window cap does not apply here; summarization needs the whole
// day.
func ComposeSummary(background []session.MemoryEntry, transcript []session.Turn) []llm.Fragment {
	fragments := make([]llm.Fragment, 0, len(background)+len(transcript)+1)
	for _, entry := range background {
		fragments = append(fragments, llm.Fragment{
			Kind:  llm.FragmentMemory,
			Label: entry.Day,
			Text:  entry.Memory.Text,
		})
	}
	for _, turn := range transcript {
		fragments = append(fragments, turnFragment(turn))
	}
	fragments = append(fragments, llm.Fragment{
		Kind:  llm.FragmentCue,
		Label: llm.AssistantName,
	})
	return fragments
}

func turnFragment(t session.Turn) llm.Fragment {
	return llm.Fragment{
		Kind:      llm.FragmentTurn,
		Label:     t.Speaker,
		Timestamp: t.Timestamp,
		Text:      t.Text,
	}
}

// EstimateTokens counts the prompt's token footprint for logging and the
// memories view.
func EstimateTokens(fragments []llm.Fragment) int {
	return token.Count(llm.RenderFragments(fragments))
}

// ContextTokens estimates the stored context a next prompt would carry:
// every memory plus today's windowed turns, without an incoming message.
func ContextTokens(s *session.Session, now time.Time) int {
	memories := s.MemoryEntries()
	today := s.TodayTurns(now)
	if len(today) > HistoryWindow {
		today = today[len(today)-HistoryWindow:]
	}

	fragments := make([]llm.Fragment, 0, len(memories)+len(today))
	for _, entry := range memories {
		fragments = append(fragments, llm.Fragment{
			Kind:  llm.FragmentMemory,
			Label: entry.Day,
			Text:  entry.Memory.Text,
		})
	}
	for _, turn := range today {
		fragments = append(fragments, turnFragment(turn))
	}
	return EstimateTokens(fragments)
}
