package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// TelegramClient talks to the Telegram Bot API
type TelegramClient struct {
	baseURL string
	token   string
	client  *resty.Client
}

// Ensure TelegramClient implements MessageChannel
var _ MessageChannel = (*TelegramClient)(nil)

// Update is one inbound event from the Bot API
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// Message is a chat message
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat identifies where a message was posted
type Chat struct {
	ID    models.ExternalID `json:"id"`
	Type  string            `json:"type"`
	Title string            `json:"title,omitempty"`
}

// User is the author of a message
type User struct {
	ID        models.ExternalID `json:"id"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name,omitempty"`
	Username  string            `json:"username,omitempty"`
}

type inlineKeyboardButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string                `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type telegramResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// NewTelegramClient creates a Bot API client
func NewTelegramClient(apiURL, token string, timeout time.Duration) *TelegramClient {
	return &TelegramClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
		client:  resty.New().SetTimeout(timeout),
	}
}

// Send posts an HTML-formatted message to a chat
func (t *TelegramClient) Send(ctx context.Context, target models.ExternalID, text string) error {
	return t.sendMessage(ctx, &sendMessageRequest{
		ChatID:    target.Normalize(),
		Text:      text,
		ParseMode: "HTML",
	})
}

// SendLinkButton posts a message with a single inline button opening url
func (t *TelegramClient) SendLinkButton(ctx context.Context, chatID models.ExternalID, text, buttonText, url string) error {
	return t.sendMessage(ctx, &sendMessageRequest{
		ChatID:    chatID.Normalize(),
		Text:      text,
		ParseMode: "HTML",
		ReplyMarkup: &inlineKeyboardMarkup{
			InlineKeyboard: [][]inlineKeyboardButton{{{Text: buttonText, URL: url}}},
		},
	})
}

// GetUpdates long-polls the Bot API for updates starting at offset
func (t *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]string{
		"timeout": strconv.Itoa(int(timeout.Seconds())),
	}
	if offset > 0 {
		params["offset"] = strconv.FormatInt(offset, 10)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(t.methodURL("getUpdates"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Telegram updates: %w", err)
	}

	result, err := decodeTelegramResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode Telegram updates: %w", err)
	}
	return updates, nil
}

func (t *TelegramClient) sendMessage(ctx context.Context, request *sendMessageRequest) error {
	if request.ChatID == "" {
		return fmt.Errorf("chat id is required")
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		Post(t.methodURL("sendMessage"))
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}

	if _, err := decodeTelegramResponse(resp); err != nil {
		return fmt.Errorf("sendMessage to %s: %w", request.ChatID, err)
	}

	logrus.Debugf("Telegram message delivered to %s", request.ChatID)
	return nil
}

func (t *TelegramClient) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func decodeTelegramResponse(resp *resty.Response) (json.RawMessage, error) {
	var body telegramResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to understand Telegram response (err: %v). code: %d content: %s", err, resp.StatusCode(), string(resp.Body()))
	}

	if resp.StatusCode() != 200 || !body.Ok {
		return nil, fmt.Errorf("telegram error (%d) description: %s", body.ErrorCode, body.Description)
	}

	return body.Result, nil
}
