package bot

import (
	"fmt"
	"strings"
	"time"

	"mnemo/internal/prompt"
	"mnemo/internal/session"
)

// Callback data uses a "verb:subject[:value]" scheme so the router can
// split on colons without per-button parsing.
const (
	cbMenuMain    = "menu:main"
	cbMenuTokens  = "menu:tokens"
	cbMenuTemp    = "menu:temp"
	cbMenuPrimary = "menu:primary"
	cbMenuBackup  = "menu:backup"

	cbSetTokens  = "set:tokens"
	cbSetTemp    = "set:temp"
	cbSetPrimary = "set:primary"
	cbSetBackup  = "set:backup"

	cbMemView        = "mem:view"
	cbMemConsolidate = "mem:consolidate"

	cbDeleteLast  = "del:last"
	cbDeleteToday = "del:today"
	cbDeleteAll   = "del:clear"
)

// settingsMenu is the top-level inline menu shown by /settings. Button
// labels carry the current values so the menu doubles as a status view.
func settingsMenu(s *session.Session) (string, *InlineKeyboard) {
	text := "<b>Settings</b>\nPick an option below."
	kb := &InlineKeyboard{InlineKeyboard: [][]InlineButton{
		{
			{Text: fmt.Sprintf("Max tokens: %d", s.Params.MaxTokens), CallbackData: cbMenuTokens},
			{Text: fmt.Sprintf("Temperature: %.1f", s.Params.Temperature), CallbackData: cbMenuTemp},
		},
		{
			{Text: fmt.Sprintf("Primary: %s", s.PrimaryProvider), CallbackData: cbMenuPrimary},
			{Text: fmt.Sprintf("Backup: %s", s.BackupProvider), CallbackData: cbMenuBackup},
		},
		{
			{Text: "View memories", CallbackData: cbMemView},
			{Text: "Consolidate now", CallbackData: cbMemConsolidate},
		},
		{
			{Text: "Delete last…", CallbackData: cbDeleteLast},
			{Text: "Delete today", CallbackData: cbDeleteToday},
		},
		{
			{Text: "Clear everything", CallbackData: cbDeleteAll},
		},
	}}
	return text, kb
}

// tokensMenu offers the allowed max-token steps.
func tokensMenu(current int) (string, *InlineKeyboard) {
	var rows [][]InlineButton
	var row []InlineButton
	for v := session.MinMaxTokens; v <= session.MaxMaxTokens; v += session.MaxTokensStep {
		label := fmt.Sprintf("%d", v)
		if v == current {
			label = "• " + label
		}
		row = append(row, InlineButton{
			Text:         label,
			CallbackData: fmt.Sprintf("%s:%d", cbSetTokens, v),
		})
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []InlineButton{{Text: "« Back", CallbackData: cbMenuMain}})
	return "<b>Max answer length</b> (tokens)", &InlineKeyboard{InlineKeyboard: rows}
}

// temperatureMenu offers sampling temperatures in 0.1 steps.
func temperatureMenu(current float64) (string, *InlineKeyboard) {
	var rows [][]InlineButton
	var row []InlineButton
	for i := 1; i <= 20; i++ {
		v := float64(i) / 10
		label := fmt.Sprintf("%.1f", v)
		if label == fmt.Sprintf("%.1f", current) {
			label = "• " + label
		}
		row = append(row, InlineButton{
			Text:         label,
			CallbackData: fmt.Sprintf("%s:%.1f", cbSetTemp, v),
		})
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, []InlineButton{{Text: "« Back", CallbackData: cbMenuMain}})
	return "<b>Temperature</b> (higher = more creative)", &InlineKeyboard{InlineKeyboard: rows}
}

// providerMenu offers the closed provider set for the primary or backup
// slot.
func providerMenu(slot string, current session.ProviderID) (string, *InlineKeyboard) {
	prefix := cbSetPrimary
	title := "<b>Primary model</b>"
	if slot == "backup" {
		prefix = cbSetBackup
		title = "<b>Backup model</b>"
	}
	var row []InlineButton
	for _, p := range session.AllProviders() {
		label := string(p)
		if p == current {
			label = "• " + label
		}
		row = append(row, InlineButton{
			Text:         label,
			CallbackData: fmt.Sprintf("%s:%s", prefix, p),
		})
	}
	kb := &InlineKeyboard{InlineKeyboard: [][]InlineButton{
		row,
		{{Text: "« Back", CallbackData: cbMenuMain}},
	}}
	return title, kb
}

// renderMemories formats the memories view: one block per day in
// insertion order, with the context footprint appended.
func renderMemories(s *session.Session, now time.Time) string {
	entries := s.MemoryEntries()
	if len(entries) == 0 && len(s.History) == 0 {
		return "Nothing remembered yet. Say hi!"
	}

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("No day summaries yet.\n")
	}
	for _, entry := range entries {
		fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n", entry.Day, entry.Memory.Text)
	}
	fmt.Fprintf(&b, "<i>%d messages in recent history, %d day summaries, ~%d tokens of context.</i>",
		len(s.History), len(entries), prompt.ContextTokens(s, now))
	return b.String()
}
