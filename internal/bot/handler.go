package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mnemoerrors "mnemo/internal/errors"
	"mnemo/internal/llm"
	"mnemo/internal/logging"
	"mnemo/internal/markup"
	"mnemo/internal/observability"
	"mnemo/internal/prompt"
	"mnemo/internal/session"
)

// Fixed reply texts.
const (
	welcomeReply = "Hi! I'm Mnemo. Talk to me like you would a friend — I remember our conversations day by day. /settings opens the menu, /help explains the rest."

	helpReply = `I keep a running memory of our chats: recent messages verbatim, older days as summaries.

/settings — models, answer length, temperature, memory tools
/memories — what I currently remember
/consolidate — fold today's chat into a summary now

Anything else you send, I just answer.`

	mediaReply = "I can only read text right now — photos, voice notes, and files go over my head. Tell me in words?"

	genericApology = "Something went wrong on my side. Please try that again."

	deletePromptReply = "How many of the last messages should I forget? Send a number."
)

// transport is the platform surface the handler talks to.
type transport interface {
	SendMessage(ctx context.Context, chatID int64, html string, keyboard *InlineKeyboard) error
	SendChatAction(ctx context.Context, chatID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// generator is the dispatch-engine slice the handler needs.
type generator interface {
	Generate(ctx context.Context, primary, backup session.ProviderID, req llm.Request, config mnemoerrors.RetryConfig) (*llm.Result, error)
}

// consolidator is the memory-pass slice the handler needs.
type consolidator interface {
	Due(s *session.Session) bool
	Consolidate(ctx context.Context, s *session.Session, now time.Time) int
}

// Handler orchestrates one update at a time per user: compose, dispatch,
// append, maybe consolidate, persist, reply.
type Handler struct {
	tg       transport
	store    session.Store
	dispatch generator
	memory   consolidator
	locks    *session.KeyedMutex
	metrics  *observability.Metrics
	logger   *logging.Logger

	// now and pace are injectable for tests.
	now  func() time.Time
	pace time.Duration
}

// NewHandler wires the update handler. metrics may be nil.
func NewHandler(tg transport, store session.Store, dispatch generator, memory consolidator, metrics *observability.Metrics) *Handler {
	return &Handler{
		tg:       tg,
		store:    store,
		dispatch: dispatch,
		memory:   memory,
		locks:    session.NewKeyedMutex(),
		metrics:  metrics,
		logger:   logging.NewComponentLogger("bot"),
		now:      time.Now,
		pace:     time.Second,
	}
}

// HandleUpdate routes one inbound update. Errors are handled into user
// replies; the return value reports only transport-level failures worth
// logging by the caller.
func (h *Handler) HandleUpdate(ctx context.Context, update Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *Message) {
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	h.locks.Lock(userID)
	defer h.locks.Unlock(userID)

	if hasMedia(msg) {
		h.metrics.RecordUpdate(ctx, "media")
		h.send(ctx, chatID, mediaReply, nil)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	s, _, err := h.store.Get(ctx, userID)
	if err != nil {
		h.logger.Error("Loading session for %s: %v", userID, err)
		h.send(ctx, chatID, genericApology, nil)
		return
	}

	if strings.HasPrefix(text, "/") {
		h.metrics.RecordUpdate(ctx, "command")
		h.handleCommand(ctx, chatID, userID, s, text)
		return
	}

	if s.PendingDeleteCount {
		h.metrics.RecordUpdate(ctx, "delete_count")
		h.handleDeleteCount(ctx, chatID, userID, s, text)
		return
	}

	h.metrics.RecordUpdate(ctx, "chat")
	h.handleChat(ctx, chatID, userID, s, speakerName(msg), text, messageTime(msg, h.now))
}

// handleChat is the main conversational flow.
func (h *Handler) handleChat(ctx context.Context, chatID int64, userID string, s *session.Session, speaker, text string, now time.Time) {
	fragments := prompt.Compose(s, speaker, text, now)
	h.logger.Debug("Composed %d fragments (~%d tokens) for %s",
		len(fragments), prompt.EstimateTokens(fragments), userID)

	req := llm.Request{
		Fragments:   fragments,
		MaxTokens:   s.Params.MaxTokens,
		Temperature: s.Params.Temperature,
	}

	_ = h.tg.SendChatAction(ctx, chatID)
	h.sleep(ctx)

	result, err := h.dispatch.Generate(ctx, s.PrimaryProvider, s.BackupProvider, req, mnemoerrors.DefaultRetryConfig())

	reply := ""
	if err != nil {
		reply = replyForError(err)
		h.logger.Warn("Generation for %s failed: %v", userID, err)
	} else {
		s.AppendTurn(speaker, text, now)
		s.AppendTurn(llm.AssistantName, result.Text, h.now())
		reply = markup.Sanitize(result.Text)
		if result.UsedBackup {
			h.logger.Info("Backup provider %s answered for %s", result.Provider, userID)
			reply += fmt.Sprintf("\n\n<i>answered by the backup model (%s)</i>", result.Provider)
		}
	}

	if h.memory.Due(s) {
		h.memory.Consolidate(ctx, s, h.now())
	}

	h.persist(ctx, userID, s)
	h.sleep(ctx)
	h.send(ctx, chatID, reply, nil)
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID string, s *session.Session, text string) {
	command := strings.ToLower(strings.TrimSpace(strings.SplitN(text, " ", 2)[0]))
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/start":
		// A command always cancels an in-flight delete prompt.
		s.PendingDeleteCount = false
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, welcomeReply, nil)
	case "/help":
		s.PendingDeleteCount = false
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, helpReply, nil)
	case "/settings":
		s.PendingDeleteCount = false
		h.persist(ctx, userID, s)
		menuText, kb := settingsMenu(s)
		h.send(ctx, chatID, menuText, kb)
	case "/memories":
		h.send(ctx, chatID, renderMemories(s, h.now()), nil)
	case "/consolidate":
		h.runConsolidation(ctx, chatID, userID, s)
	default:
		h.send(ctx, chatID, "I don't know that command. /help lists what I understand.", nil)
	}
}

// handleDeleteCount consumes the number reply of an in-flight
// delete-last-N request. The flag clears on any answer, valid or not.
func (h *Handler) handleDeleteCount(ctx context.Context, chatID int64, userID string, s *session.Session, text string) {
	s.PendingDeleteCount = false

	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, "That didn't look like a positive number, so I kept everything.", nil)
		return
	}

	removed := s.DeleteLastTurns(n)
	h.persist(ctx, userID, s)
	h.send(ctx, chatID, fmt.Sprintf("Forgot the last %d message(s). Day summaries are untouched.", removed), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if cb.Message == nil {
		_ = h.tg.AnswerCallback(ctx, cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	h.locks.Lock(userID)
	defer h.locks.Unlock(userID)

	h.metrics.RecordUpdate(ctx, "callback")

	s, _, err := h.store.Get(ctx, userID)
	if err != nil {
		h.logger.Error("Loading session for %s: %v", userID, err)
		_ = h.tg.AnswerCallback(ctx, cb.ID, genericApology)
		return
	}

	toast := h.routeCallback(ctx, chatID, userID, s, strings.TrimSpace(cb.Data))
	_ = h.tg.AnswerCallback(ctx, cb.ID, toast)
}

// routeCallback executes one button press and returns the toast text.
func (h *Handler) routeCallback(ctx context.Context, chatID int64, userID string, s *session.Session, data string) string {
	switch data {
	case cbMenuMain:
		text, kb := settingsMenu(s)
		h.send(ctx, chatID, text, kb)
		return ""
	case cbMenuTokens:
		text, kb := tokensMenu(s.Params.MaxTokens)
		h.send(ctx, chatID, text, kb)
		return ""
	case cbMenuTemp:
		text, kb := temperatureMenu(s.Params.Temperature)
		h.send(ctx, chatID, text, kb)
		return ""
	case cbMenuPrimary:
		text, kb := providerMenu("primary", s.PrimaryProvider)
		h.send(ctx, chatID, text, kb)
		return ""
	case cbMenuBackup:
		text, kb := providerMenu("backup", s.BackupProvider)
		h.send(ctx, chatID, text, kb)
		return ""
	case cbMemView:
		h.send(ctx, chatID, renderMemories(s, h.now()), nil)
		return ""
	case cbMemConsolidate:
		h.runConsolidation(ctx, chatID, userID, s)
		return ""
	case cbDeleteLast:
		s.PendingDeleteCount = true
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, deletePromptReply, nil)
		return ""
	case cbDeleteToday:
		removed := s.DeleteToday(h.now())
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, fmt.Sprintf("Forgot today's %d message(s).", removed), nil)
		return ""
	case cbDeleteAll:
		s.Clear()
		h.persist(ctx, userID, s)
		h.send(ctx, chatID, "Forgot everything — history and day summaries. Your settings survive.", nil)
		return ""
	}

	if value, ok := strings.CutPrefix(data, cbSetTokens+":"); ok {
		return h.applySetting(ctx, userID, s, func() error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			return s.SetMaxTokens(n)
		}, fmt.Sprintf("Max tokens set to %s", value))
	}
	if value, ok := strings.CutPrefix(data, cbSetTemp+":"); ok {
		return h.applySetting(ctx, userID, s, func() error {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			return s.SetTemperature(v)
		}, fmt.Sprintf("Temperature set to %s", value))
	}
	if value, ok := strings.CutPrefix(data, cbSetPrimary+":"); ok {
		return h.applySetting(ctx, userID, s, func() error {
			return s.SetPrimaryProvider(session.ProviderID(value))
		}, fmt.Sprintf("Primary model: %s", value))
	}
	if value, ok := strings.CutPrefix(data, cbSetBackup+":"); ok {
		return h.applySetting(ctx, userID, s, func() error {
			return s.SetBackupProvider(session.ProviderID(value))
		}, fmt.Sprintf("Backup model: %s", value))
	}

	h.logger.Warn("Unknown callback data %q from %s", data, userID)
	return ""
}

// applySetting runs one settings mutation, persisting on success. A
// rejected change leaves the session untouched and surfaces the reason as
// the toast.
func (h *Handler) applySetting(ctx context.Context, userID string, s *session.Session, mutate func() error, okToast string) string {
	if err := mutate(); err != nil {
		return capitalize(err.Error())
	}
	h.persist(ctx, userID, s)
	return okToast
}

func (h *Handler) runConsolidation(ctx context.Context, chatID int64, userID string, s *session.Session) {
	if len(s.History) == 0 {
		h.send(ctx, chatID, "Nothing to consolidate yet.", nil)
		return
	}
	n := h.memory.Consolidate(ctx, s, h.now())
	h.persist(ctx, userID, s)
	h.send(ctx, chatID, fmt.Sprintf("Consolidated %d day summar%s. Recent history now holds %d message(s).",
		n, pluralY(n), len(s.History)), nil)
}

// persist writes the session. Failures are logged; the in-memory state
// stays authoritative for this process.
func (h *Handler) persist(ctx context.Context, userID string, s *session.Session) {
	if err := h.store.Put(ctx, userID, s); err != nil {
		h.logger.Error("Persisting session for %s: %v", userID, err)
	}
}

// send delivers a reply, chunking long texts.
func (h *Handler) send(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboard) {
	chunks := markup.Chunk(text)
	if len(chunks) == 0 {
		return
	}
	for i, chunk := range chunks {
		// Only the last chunk carries the keyboard.
		var kb *InlineKeyboard
		if i == len(chunks)-1 {
			kb = keyboard
		}
		if err := h.tg.SendMessage(ctx, chatID, chunk, kb); err != nil {
			h.logger.Error("Sending to %d: %v", chatID, err)
			return
		}
		if i < len(chunks)-1 {
			h.sleep(ctx)
		}
	}
}

// sleep applies the send pacing delay.
func (h *Handler) sleep(ctx context.Context) {
	if h.pace <= 0 {
		return
	}
	select {
	case <-time.After(h.pace):
	case <-ctx.Done():
	}
}

// replyForError maps a classified generation error to the user-facing
// text; anything unclassified gets the generic apology.
func replyForError(err error) string {
	var transient *mnemoerrors.TransientError
	var permanent *mnemoerrors.PermanentError
	var blocked *mnemoerrors.ContentBlockedError
	if errors.As(err, &blocked) || errors.As(err, &transient) || errors.As(err, &permanent) {
		if msg := mnemoerrors.FormatForUser(err); msg != "" {
			return msg
		}
	}
	return genericApology
}

func hasMedia(msg *Message) bool {
	return len(msg.Photo) > 0 || msg.Voice != nil || msg.Document != nil || msg.Sticker != nil
}

// messageTime converts the platform's epoch-second timestamp, falling
// back to the local clock when the platform sent none.
func messageTime(msg *Message, now func() time.Time) time.Time {
	if msg.Date > 0 {
		return time.Unix(msg.Date, 0)
	}
	return now()
}

// speakerName picks the label the prompt shows for the user.
func speakerName(msg *Message) string {
	if msg.From != nil {
		if name := strings.TrimSpace(msg.From.FirstName); name != "" {
			return name
		}
		if msg.From.Username != "" {
			return msg.From.Username
		}
	}
	return "User"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
