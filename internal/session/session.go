// Package session holds the per-user conversational state: raw turn
// history, day-keyed consolidated memories, and generation settings.
package session

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProviderID identifies a generation provider. The set is closed; session
// settings only ever hold one of the declared values.
type ProviderID string

const (
	ProviderGemini ProviderID = "gemini"
	ProviderOpenAI ProviderID = "openai"
)

// AllProviders returns the closed provider set in menu order.
func AllProviders() []ProviderID {
	return []ProviderID{ProviderGemini, ProviderOpenAI}
}

// Valid reports whether p is a member of the closed provider set.
func (p ProviderID) Valid() bool {
	for _, known := range AllProviders() {
		if p == known {
			return true
		}
	}
	return false
}

// Turn timestamps are display strings carrying day-month-year, so the day
// key of a turn is a simple prefix of its timestamp.
const (
	TimeLayout = "02.01.2006 15:04"
	DayLayout  = "02.01.2006"
)

// FormatTime renders a timestamp the way turns store it.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// DayKeyOf extracts the calendar-day key from a turn timestamp.
func DayKeyOf(timestamp string) string {
	if len(timestamp) >= len(DayLayout) {
		return timestamp[:len(DayLayout)]
	}
	return timestamp
}

// DayKey renders the day key for a point in time.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// Turn is one labeled, timestamped message in the history.
type Turn struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Day returns the calendar-day key of the turn.
func (t Turn) Day() string {
	return DayKeyOf(t.Timestamp)
}

// Memory is a generated summary representing one calendar day's turns.
type Memory struct {
	Text        string `json:"text"`
	GeneratedAt string `json:"generated_at"`
}

// GenerationParams are the per-session sampling settings.
type GenerationParams struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Settings bounds exposed through the configuration menu.
const (
	MinMaxTokens   = 100
	MaxMaxTokens   = 1000
	MaxTokensStep  = 100
	MinTemperature = 0.1
	MaxTemperature = 2.0
)

// Session is the durable state for one user identity.
//
// MemoryDays preserves the insertion order of the Memories map so prompt
// composition and the memories view are deterministic. Legacy records may
// lack it; MemoryEntries tolerates that.
type Session struct {
	History                    []Turn            `json:"history"`
	Memories                   map[string]Memory `json:"memories"`
	MemoryDays                 []string          `json:"memory_days"`
	MessagesSinceConsolidation int               `json:"messages_since_consolidation"`
	Params                     GenerationParams  `json:"params"`
	PrimaryProvider            ProviderID        `json:"primary_provider"`
	BackupProvider             ProviderID        `json:"backup_provider"`

	// PendingDeleteCount marks that the next plain-text message from this
	// user is the turn count for an in-flight delete request.
	PendingDeleteCount bool `json:"pending_delete_count,omitempty"`
}

// New creates a session with default settings for a first-contact user.
func New() *Session {
	return &Session{
		History:         []Turn{},
		Memories:        map[string]Memory{},
		MemoryDays:      []string{},
		Params:          GenerationParams{MaxTokens: 400, Temperature: 1.0},
		PrimaryProvider: ProviderGemini,
		BackupProvider:  ProviderOpenAI,
	}
}

// AppendTurn appends a turn and bumps the consolidation counter.
func (s *Session) AppendTurn(speaker, text string, at time.Time) {
	s.History = append(s.History, Turn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: FormatTime(at),
	})
	s.MessagesSinceConsolidation++
}

// SetMemory stores the summary for a day, keeping the day-key order list
// in sync. Overwriting an existing day does not change its position.
func (s *Session) SetMemory(day, text string, at time.Time) {
	if s.Memories == nil {
		s.Memories = map[string]Memory{}
	}
	if _, exists := s.Memories[day]; !exists {
		s.MemoryDays = append(s.MemoryDays, day)
	}
	s.Memories[day] = Memory{
		Text:        text,
		GeneratedAt: FormatTime(at),
	}
}

// MemoryEntry pairs a day key with its memory for ordered iteration.
type MemoryEntry struct {
	Day    string
	Memory Memory
}

// MemoryEntries returns the memories in insertion order. Days present in
// the map but missing from the order list (legacy records) are appended
// after the ordered ones.
func (s *Session) MemoryEntries() []MemoryEntry {
	entries := make([]MemoryEntry, 0, len(s.Memories))
	seen := make(map[string]bool, len(s.Memories))
	for _, day := range s.MemoryDays {
		mem, ok := s.Memories[day]
		if !ok || seen[day] {
			continue
		}
		seen[day] = true
		entries = append(entries, MemoryEntry{Day: day, Memory: mem})
	}
	var leftovers []string
	for day := range s.Memories {
		if !seen[day] {
			leftovers = append(leftovers, day)
		}
	}
	sort.Strings(leftovers)
	for _, day := range leftovers {
		entries = append(entries, MemoryEntry{Day: day, Memory: s.Memories[day]})
	}
	return entries
}

// TodayTurns returns the turns whose timestamp falls on the given day.
func (s *Session) TodayTurns(now time.Time) []Turn {
	today := DayKey(now)
	turns := make([]Turn, 0, len(s.History))
	for _, turn := range s.History {
		if turn.Day() == today {
			turns = append(turns, turn)
		}
	}
	return turns
}

// DeleteLastTurns removes the last n turns and reports how many were
// actually removed. Memories are untouched.
func (s *Session) DeleteLastTurns(n int) int {
	if n <= 0 {
		return 0
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	s.History = s.History[:len(s.History)-n]
	return n
}

// DeleteToday removes every turn dated the given day and reports the count.
func (s *Session) DeleteToday(now time.Time) int {
	today := DayKey(now)
	kept := s.History[:0]
	removed := 0
	for _, turn := range s.History {
		if turn.Day() == today {
			removed++
			continue
		}
		kept = append(kept, turn)
	}
	s.History = kept
	return removed
}

// Clear empties history and memories but keeps settings. The session
// record itself survives.
func (s *Session) Clear() {
	s.History = []Turn{}
	s.Memories = map[string]Memory{}
	s.MemoryDays = []string{}
	s.MessagesSinceConsolidation = 0
}

// SetPrimaryProvider changes the primary provider. Picking the current
// backup is rejected so the pair stays distinct.
func (s *Session) SetPrimaryProvider(p ProviderID) error {
	if !p.Valid() {
		return fmt.Errorf("unknown provider %q", p)
	}
	if p == s.BackupProvider {
		return fmt.Errorf("%s is already the backup provider", p)
	}
	s.PrimaryProvider = p
	return nil
}

// SetBackupProvider changes the backup provider, rejecting the current
// primary.
func (s *Session) SetBackupProvider(p ProviderID) error {
	if !p.Valid() {
		return fmt.Errorf("unknown provider %q", p)
	}
	if p == s.PrimaryProvider {
		return fmt.Errorf("%s is already the primary provider", p)
	}
	s.BackupProvider = p
	return nil
}

// SetMaxTokens validates and applies a max output token setting.
func (s *Session) SetMaxTokens(n int) error {
	if n < MinMaxTokens || n > MaxMaxTokens {
		return fmt.Errorf("max tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens)
	}
	s.Params.MaxTokens = n
	return nil
}

// SetTemperature validates and applies a sampling temperature.
func (s *Session) SetTemperature(v float64) error {
	if v < MinTemperature || v > MaxTemperature {
		return fmt.Errorf("temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature)
	}
	s.Params.Temperature = v
	return nil
}

// Normalize patches zero values left behind by legacy records so the rest
// of the code can rely on defaults being present. Deliberately does not
// repair a primary==backup pair; generation uses the stored values as-is.
func (s *Session) Normalize() {
	if s.Memories == nil {
		s.Memories = map[string]Memory{}
	}
	if s.MemoryDays == nil {
		s.MemoryDays = []string{}
	}
	if s.Params.MaxTokens == 0 {
		s.Params.MaxTokens = 400
	}
	if s.Params.Temperature == 0 {
		s.Params.Temperature = 1.0
	}
	if strings.TrimSpace(string(s.PrimaryProvider)) == "" {
		s.PrimaryProvider = ProviderGemini
	}
	if strings.TrimSpace(string(s.BackupProvider)) == "" {
		s.BackupProvider = ProviderOpenAI
	}
}
