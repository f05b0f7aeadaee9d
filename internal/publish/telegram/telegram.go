package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const (
	// EmptyPlaceholder replaces empty text; Telegram rejects empty messages.
	EmptyPlaceholder = "(empty)"

	// maxGroupSize is the largest media group Telegram accepts.
	maxGroupSize = 10

	httpTimeout = 60 * time.Second
)

// Config holds the bot credentials and destination chat.
type Config struct {
	Token string
	// ChatID is a numeric chat id or an @channel username.
	ChatID string
}

// API is the subset of the bot client used for publishing.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Client publishes posts to a Telegram chat or channel.
type Client struct {
	api  API
	chat tgbotapi.BaseChat
}

// New logs the bot in and returns a publisher for cfg.ChatID.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, publish.ConfigErrorf(publish.Telegram, "telegram bot token and chat id are required")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, publish.ConfigErrorf(publish.Telegram, "telegram login: %v", err)
	}
	bot.Debug = logutil.Verbose()
	logutil.Debugf("telegram bot authorized: %s", bot.Self.UserName)

	return NewWithAPI(bot, cfg.ChatID)
}

// NewWithAPI builds a publisher over an existing client.
func NewWithAPI(api API, chatID string) (*Client, error) {
	chat, err := parseChat(chatID)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, chat: chat}, nil
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.Telegram }

// Publish sends the payload as a text, photo, video or media group message
// depending on how many usable media items it carries.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	media := publish.FilterUsable(payload.Media)
	if skipped := len(payload.Media) - len(media); skipped > 0 {
		logutil.Debugf("telegram: skipping %d media item(s) without a local path", skipped)
	}

	switch {
	case len(media) == 0:
		return c.sendText(payload.Text)
	case len(media) == 1:
		return c.sendSingle(media[0], payload.Text)
	default:
		return c.sendGroup(media, payload.Text)
	}
}

func (c *Client) sendText(text string) (publish.Result, error) {
	if text == "" {
		text = EmptyPlaceholder
	}
	msg := tgbotapi.MessageConfig{BaseChat: c.chat, Text: text}

	logutil.Debugf("telegram: sending text message")
	sent, err := c.api.Send(msg)
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Telegram, fmt.Errorf("send message: %w", err))
	}
	return publish.Result{MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (c *Client) sendSingle(m publish.MediaDescriptor, caption string) (publish.Result, error) {
	file, err := m.Open(publish.Telegram)
	if err != nil {
		return publish.Result{}, err
	}
	defer file.Close()

	data := tgbotapi.FileReader{Name: m.UploadName(), Reader: file}
	base := tgbotapi.BaseFile{BaseChat: c.chat, File: data}

	var msg tgbotapi.Chattable
	switch m.Kind {
	case publish.Video:
		msg = tgbotapi.VideoConfig{BaseFile: base, Caption: caption, SupportsStreaming: true}
	default:
		msg = tgbotapi.PhotoConfig{BaseFile: base, Caption: caption}
	}

	logutil.Debugf("telegram: sending single %s: %s", m.Kind, m.UploadName())
	sent, err := c.api.Send(msg)
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Telegram, fmt.Errorf("send %s: %w", m.Kind, err))
	}
	return publish.Result{MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (c *Client) sendGroup(media []publish.MediaDescriptor, caption string) (publish.Result, error) {
	if len(media) > maxGroupSize {
		return publish.Result{}, publish.Validationf(publish.Telegram, "telegram media groups hold at most %d items, got %d", maxGroupSize, len(media))
	}

	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()

	group := make([]interface{}, 0, len(media))
	for i, m := range media {
		file, err := m.Open(publish.Telegram)
		if err != nil {
			return publish.Result{}, err
		}
		closers = append(closers, file)
		group = append(group, groupItem(m, file, i == 0, caption))
	}

	cfg := tgbotapi.MediaGroupConfig{
		ChatID:          c.chat.ChatID,
		ChannelUsername: c.chat.ChannelUsername,
		Media:           group,
	}

	logutil.Debugf("telegram: sending media group of %d items", len(group))
	sent, err := c.api.SendMediaGroup(cfg)
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Telegram, fmt.Errorf("send media group: %w", err))
	}

	ids := make([]string, len(sent))
	for i, msg := range sent {
		ids[i] = strconv.Itoa(msg.MessageID)
	}
	return publish.Result{MessageIDs: ids}, nil
}

// groupItem builds one media group element. Telegram shows only the first
// element's caption, so later elements never carry it.
func groupItem(m publish.MediaDescriptor, r io.Reader, first bool, caption string) interface{} {
	data := tgbotapi.FileReader{Name: m.UploadName(), Reader: r}
	if m.Kind == publish.Video {
		item := tgbotapi.NewInputMediaVideo(data)
		if first {
			item.Caption = caption
		}
		return item
	}
	item := tgbotapi.NewInputMediaPhoto(data)
	if first {
		item.Caption = caption
	}
	return item
}

func parseChat(raw string) (tgbotapi.BaseChat, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return tgbotapi.BaseChat{}, publish.ConfigErrorf(publish.Telegram, "telegram chat id is required")
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}, nil
	}
	if !strings.HasPrefix(raw, "@") {
		raw = "@" + raw
	}
	return tgbotapi.BaseChat{ChannelUsername: raw}, nil
}

var _ publish.Publisher = (*Client)(nil)
