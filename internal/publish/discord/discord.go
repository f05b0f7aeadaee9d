package discord

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const (
	errNotReady       = "Discord bot is not ready or not configured"
	errNotTextChannel = "Discord channel not found or is not a text channel"

	messageURLFormat   = "https://discord.com/channels/%s/%s/%s"
	defaultReadyWindow = 15 * time.Second
)

// Config holds the bot token and destination channel.
type Config struct {
	Token     string
	ChannelID string
	// ReadyTimeout bounds how long New waits for the gateway handshake.
	ReadyTimeout time.Duration
}

// API is the subset of the Discord session used for publishing.
type API interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Client publishes posts to a Discord text channel.
type Client struct {
	api       API
	channelID string
	state     *publish.SessionState
	session   *discordgo.Session
}

// New opens a bot session and waits up to cfg.ReadyTimeout for the Ready
// event. A session that is not ready in time still yields a client; its
// Publish calls fail until the handshake completes.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, publish.ConfigErrorf(publish.Discord, "discord bot token and channel id are required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, publish.ConfigErrorf(publish.Discord, "create discord session: %v", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	state := publish.NewSessionState()
	StartSession(session, state)

	window := cfg.ReadyTimeout
	if window <= 0 {
		window = defaultReadyWindow
	}
	waitCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	if status, err := state.Wait(waitCtx); err != nil {
		logutil.Warnf("discord: session still %s after %s: %v", status, window, err)
	} else if status == publish.Failed {
		_, cause := state.State()
		logutil.Errorf("discord login failed: %v", cause)
	}

	c := NewWithAPI(session, cfg.ChannelID, state)
	c.session = session
	return c, nil
}

// StartSession registers the ready handler and opens the gateway. The state
// moves to Ready on the Ready event, or to Failed when the connection fails.
func StartSession(session *discordgo.Session, state *publish.SessionState) {
	session.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			logutil.Infof("discord bot logged in as %s", r.User.Username)
		}
		state.MarkReady()
	})
	if err := session.Open(); err != nil {
		state.MarkFailed(fmt.Errorf("open gateway: %w", err))
	}
}

// NewWithAPI builds a publisher over an existing session and its state.
func NewWithAPI(api API, channelID string, state *publish.SessionState) *Client {
	return &Client{api: api, channelID: channelID, state: state}
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.Discord }

// Publish sends the text and every usable media item as one message.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	if c.api == nil || c.state == nil {
		return publish.Result{}, publish.ConfigErrorf(publish.Discord, errNotReady)
	}
	if status, _ := c.state.State(); status != publish.Ready {
		return publish.Result{}, publish.ConfigErrorf(publish.Discord, errNotReady)
	}

	channel, err := c.api.Channel(c.channelID, discordgo.WithContext(ctx))
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Discord, fmt.Errorf("fetch channel: %w", err))
	}
	if channel == nil || !isTextBased(channel.Type) {
		return publish.Result{}, publish.ConfigErrorf(publish.Discord, errNotTextChannel)
	}

	media := publish.FilterUsable(payload.Media)
	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()

	files := make([]*discordgo.File, 0, len(media))
	for _, m := range media {
		file, err := m.Open(publish.Discord)
		if err != nil {
			return publish.Result{}, err
		}
		closers = append(closers, file)
		files = append(files, &discordgo.File{
			Name:        m.UploadName(),
			ContentType: m.MIMEType,
			Reader:      file,
		})
	}

	send := &discordgo.MessageSend{Content: payload.Text}
	if len(files) > 0 {
		send.Files = files
	}

	logutil.Debugf("discord: sending message to %s with %d attachment(s)", channel.ID, len(files))
	msg, err := c.api.ChannelMessageSendComplex(channel.ID, send, discordgo.WithContext(ctx))
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Discord, fmt.Errorf("send message: %w", err))
	}

	return publish.Result{MessageID: msg.ID, URL: messageURL(channel, msg)}, nil
}

// Close shuts down the gateway session opened by New.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func isTextBased(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeDM,
		discordgo.ChannelTypeGroupDM,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildStageVoice:
		return true
	}
	return false
}

func messageURL(channel *discordgo.Channel, msg *discordgo.Message) string {
	guild := msg.GuildID
	if guild == "" {
		guild = channel.GuildID
	}
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf(messageURLFormat, guild, channel.ID, msg.ID)
}

var _ publish.Publisher = (*Client)(nil)
