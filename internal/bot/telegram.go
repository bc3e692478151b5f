// Package bot connects the chat platform to the assistant: a thin
// Telegram Bot API transport, the command and menu surface, and the
// per-update orchestration over sessions, prompts, and dispatch.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mnemo/internal/logging"
)

const telegramAPIBase = "https://api.telegram.org/bot"

// TelegramClient is a minimal Bot API client over long polling. Only the
// handful of methods the assistant needs are implemented.
type TelegramClient struct {
	apiBase    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTelegramClient creates a client for the given bot token.
func NewTelegramClient(token string, pollTimeout time.Duration) *TelegramClient {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &TelegramClient{
		apiBase: telegramAPIBase + token,
		httpClient: &http.Client{
			// Long-poll requests block server-side; leave headroom past
			// the poll timeout before the client gives up.
			Timeout: pollTimeout + 15*time.Second,
		},
		logger: logging.NewComponentLogger("telegram"),
	}
}

// apiResponse is the generic Bot API response wrapper.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Update is one inbound event: a message or a callback button press.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Voice     *Voice      `json:"voice,omitempty"`
	Document  *Document   `json:"document,omitempty"`
	Sticker   *Sticker    `json:"sticker,omitempty"`
}

// User identifies a message sender.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// CallbackQuery is an inline-keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// PhotoSize is one resolution of an inbound photo.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Voice is an inbound voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Document is an inbound file attachment.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Sticker is an inbound sticker.
type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji,omitempty"`
}

// InlineKeyboard is the reply markup for menu messages.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// InlineButton is one keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// GetUpdates long-polls for new updates past the given offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message","callback_query"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var wrapper apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("parse getUpdates response: %w", err)
	}
	if !wrapper.OK {
		return nil, fmt.Errorf("getUpdates rejected: %s", wrapper.Description)
	}

	var updates []Update
	if err := json.Unmarshal(wrapper.Result, &updates); err != nil {
		return nil, fmt.Errorf("parse updates: %w", err)
	}
	return updates, nil
}

type sendMessagePayload struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends an HTML-formatted message, optionally with an inline
// keyboard. Falls back to plain text when Telegram rejects the markup.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, html string, keyboard *InlineKeyboard) error {
	err := c.call(ctx, "sendMessage", sendMessagePayload{
		ChatID:      chatID,
		Text:        html,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	}, nil)
	if err == nil {
		return nil
	}
	c.logger.Warn("HTML send failed, retrying as plain text: %v", err)
	return c.call(ctx, "sendMessage", sendMessagePayload{
		ChatID:      chatID,
		Text:        html,
		ReplyMarkup: keyboard,
	}, nil)
}

// SendChatAction shows the "typing" indicator in the chat.
func (c *TelegramClient) SendChatAction(ctx context.Context, chatID int64) error {
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	}, nil)
}

// AnswerCallback acknowledges a button press so the client stops its
// spinner. text, when set, shows as a toast.
func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *TelegramClient) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var wrapper apiResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("parse %s response: %w", method, err)
	}
	if !wrapper.OK {
		return fmt.Errorf("%s rejected: %s", method, wrapper.Description)
	}
	if result != nil {
		if err := json.Unmarshal(wrapper.Result, result); err != nil {
			return fmt.Errorf("parse %s result: %w", method, err)
		}
	}
	return nil
}
