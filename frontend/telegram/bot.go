// Package telegram is the chat platform adapter: it implements the
// outbound Messaging surface over the Telegram Bot API and produces
// inbound human input events via long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vigil-agent/vigil"
)

const (
	maxMessageLength = 4096
	apiBaseURL       = "https://api.telegram.org/bot"
)

// reactionEmoji maps the agent-facing emoji names to Telegram reaction
// emoji.
var reactionEmoji = map[string]string{
	"OK":       "👌",
	"THUMBSUP": "👍",
	"MUSCLE":   "💪",
	"LOL":      "😂",
	"THINKING": "🤔",
	"Shrug":    "🤷",
	"Fire":     "🔥",
	"Coffee":   "☕",
	"PARTY":    "🎉",
	"CAKE":     "🎂",
	"HEART":    "❤",
}

// Enqueuer pushes inbound events onto the scheduler queue.
type Enqueuer interface {
	Enqueue(event vigil.Event)
}

// Bot talks to the Telegram Bot API.
type Bot struct {
	token           string
	notifyChannelID string
	allowedUserID   string
	httpClient      *http.Client
	logger          *slog.Logger
}

var _ vigil.Messaging = (*Bot)(nil)

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithAllowedUser restricts inbound messages to a single Telegram user ID.
// Empty means accept everyone.
func WithAllowedUser(userID string) BotOption {
	return func(b *Bot) { b.allowedUserID = userID }
}

// WithLogger sets the logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) BotOption {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBot creates a Telegram bot. notifyChannelID is the chat that
// receives Notify broadcasts.
func NewBot(token, notifyChannelID string, opts ...BotOption) *Bot {
	b := &Bot{
		token:           token,
		notifyChannelID: notifyChannelID,
		httpClient:      &http.Client{Timeout: 65 * time.Second},
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run long-polls for updates and enqueues a HumanInputEvent per inbound
// text message. Blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, queue Enqueuer) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("telegram poll error", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			if b.allowedUserID != "" {
				if u.Message.From == nil || strconv.FormatInt(u.Message.From.ID, 10) != b.allowedUserID {
					continue
				}
			}
			text := u.Message.Text
			if text == "" {
				text = u.Message.Caption
			}
			if text == "" {
				continue
			}
			queue.Enqueue(vigil.HumanInputEvent{
				ChatID:    strconv.FormatInt(u.Message.Chat.ID, 10),
				MessageID: strconv.FormatInt(u.Message.MessageID, 10),
				Message:   text,
			})
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	var result []Update
	if err := b.callAPI(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Notify sends text to the configured broadcast channel.
func (b *Bot) Notify(ctx context.Context, text string) error {
	if b.notifyChannelID == "" {
		return nil
	}
	return b.SendToChat(ctx, b.notifyChannelID, text)
}

// SendToChat sends a message with HTML formatting, splitting on
// Telegram's 4096-char limit.
func (b *Bot) SendToChat(ctx context.Context, chatID, text string) error {
	for _, chunk := range splitMessage(text) {
		body := map[string]any{
			"chat_id":    chatID,
			"text":       MarkdownToHTML(chunk),
			"parse_mode": "HTML",
		}
		if err := b.callAPI(ctx, "sendMessage", body, nil); err != nil {
			// HTML rejected, retry the chunk as plain text.
			body["text"] = chunk
			delete(body, "parse_mode")
			if err := b.callAPI(ctx, "sendMessage", body, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddReaction attaches a reaction to a message. emoji is one of the
// agent-facing names (OK, THUMBSUP, ...).
func (b *Bot) AddReaction(ctx context.Context, chatID, messageID, emoji string) error {
	mapped, ok := reactionEmoji[emoji]
	if !ok {
		return fmt.Errorf("telegram: unsupported reaction %q", emoji)
	}
	msgID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message ID %q: %w", messageID, err)
	}
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": msgID,
		"reaction":   []map[string]string{{"type": "emoji", "emoji": mapped}},
	}
	return b.callAPI(ctx, "setMessageReaction", body, nil)
}

// SendImageToChat uploads image bytes via sendPhoto multipart.
func (b *Bot) SendImageToChat(ctx context.Context, chatID, filename string, image []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("telegram: build upload: %w", err)
	}
	part, err := mw.CreateFormFile("photo", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("telegram: build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("telegram: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("telegram: build upload: %w", err)
	}

	url := apiBaseURL + b.token + "/sendPhoto"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body, nil)
}

// callAPI posts JSON to a Telegram Bot API method and decodes the result.
func (b *Bot) callAPI(ctx context.Context, method string, reqBody any, result any) error {
	url := apiBaseURL + b.token + "/" + method

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body, result)
}

func decodeEnvelope(r io.Reader, result any) error {
	respBody, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}
	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(respBody))
	}
	if !envelope.OK {
		return fmt.Errorf("telegram API error %d: %s", envelope.ErrorCode, envelope.Description)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

// splitMessage splits text into chunks that fit within Telegram's
// 4096-char limit, preferring newline boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxMessageLength {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := remaining[:maxMessageLength]
		splitPos := strings.LastIndex(splitAt, "\n")
		if splitPos == -1 {
			splitPos = maxMessageLength
		} else {
			splitPos++ // include the newline in the current chunk
		}
		chunks = append(chunks, remaining[:splitPos])
		remaining = remaining[splitPos:]
	}
	return chunks
}
