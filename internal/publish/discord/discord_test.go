package discord

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/xpublish/internal/publish"
)

type fakeAPI struct {
	channel      *discordgo.Channel
	channelErr   error
	sendErr      error
	channelCalls int
	sends        []*discordgo.MessageSend
	bodies       [][]string
}

func (f *fakeAPI) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.channelCalls++
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channel, nil
}

func (f *fakeAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sends = append(f.sends, data)
	var bodies []string
	for _, file := range data.Files {
		b, err := io.ReadAll(file.Reader)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, string(b))
	}
	f.bodies = append(f.bodies, bodies)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &discordgo.Message{ID: "m-1", ChannelID: channelID}, nil
}

func (f *fakeAPI) calls() int { return f.channelCalls + len(f.sends) }

func readyState() *publish.SessionState {
	s := publish.NewSessionState()
	s.MarkReady()
	return s
}

func textChannel() *discordgo.Channel {
	return &discordgo.Channel{ID: "c-1", GuildID: "g-1", Type: discordgo.ChannelTypeGuildText}
}

func writeMedia(t *testing.T, name, body string, kind publish.MediaKind) publish.MediaDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return publish.MediaDescriptor{Name: name, Kind: kind, MIMEType: "application/octet-stream", LocalPath: path}
}

func TestPublishNotReady(t *testing.T) {
	tests := []struct {
		name  string
		state func() *publish.SessionState
	}{
		{name: "initializing", state: publish.NewSessionState},
		{name: "failed", state: func() *publish.SessionState {
			s := publish.NewSessionState()
			s.MarkFailed(errors.New("bad token"))
			return s
		}},
		{name: "nil state", state: func() *publish.SessionState { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{channel: textChannel()}
			c := NewWithAPI(api, "c-1", tt.state())

			_, err := c.Publish(context.Background(), publish.PostPayload{Text: "hi"})
			require.Error(t, err)
			assert.Equal(t, "Discord bot is not ready or not configured", err.Error())
			assert.Equal(t, publish.ConfigError, publish.KindOf(err))
			assert.Zero(t, api.calls())
		})
	}
}

func TestPublishChannelChecks(t *testing.T) {
	t.Run("channel fetch fails", func(t *testing.T) {
		api := &fakeAPI{channelErr: errors.New("HTTP 503 Service Unavailable")}
		_, err := NewWithAPI(api, "c-1", readyState()).Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.Error(t, err)
		assert.Equal(t, "fetch channel: HTTP 503 Service Unavailable", err.Error())
		assert.Equal(t, publish.TransportError, publish.KindOf(err))
		assert.Empty(t, api.sends)
	})

	t.Run("channel fetch failure is retried", func(t *testing.T) {
		api := &fakeAPI{channelErr: errors.New("HTTP 503 Service Unavailable")}
		pub := publish.WithRetry(NewWithAPI(api, "c-1", readyState()), publish.RetryConfig{
			Attempts:        3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		})
		_, err := pub.Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.Error(t, err)
		assert.Equal(t, publish.TransportError, publish.KindOf(err))
		assert.Equal(t, 3, api.channelCalls)
	})

	t.Run("missing channel", func(t *testing.T) {
		api := &fakeAPI{}
		_, err := NewWithAPI(api, "c-1", readyState()).Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.Error(t, err)
		assert.Equal(t, errNotTextChannel, err.Error())
		assert.Equal(t, publish.ConfigError, publish.KindOf(err))
	})

	t.Run("category is not text based", func(t *testing.T) {
		api := &fakeAPI{channel: &discordgo.Channel{ID: "c-1", Type: discordgo.ChannelTypeGuildCategory}}
		_, err := NewWithAPI(api, "c-1", readyState()).Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.Error(t, err)
		assert.Equal(t, errNotTextChannel, err.Error())
		assert.Empty(t, api.sends)
	})
}

func TestPublishMessage(t *testing.T) {
	t.Run("text and attachments in one call", func(t *testing.T) {
		api := &fakeAPI{channel: textChannel()}
		payload := publish.PostPayload{
			Text: "hello",
			Media: []publish.MediaDescriptor{
				writeMedia(t, "a.png", "img", publish.Image),
				{Name: "nopath.png", Kind: publish.Image},
				writeMedia(t, "b.mp4", "vid", publish.Video),
			},
		}

		res, err := NewWithAPI(api, "c-1", readyState()).Publish(context.Background(), payload)
		require.NoError(t, err)

		require.Len(t, api.sends, 1)
		send := api.sends[0]
		assert.Equal(t, "hello", send.Content)
		require.Len(t, send.Files, 2)
		assert.Equal(t, "a.png", send.Files[0].Name)
		assert.Equal(t, "b.mp4", send.Files[1].Name)
		assert.Equal(t, []string{"img", "vid"}, api.bodies[0])

		assert.Equal(t, "m-1", res.MessageID)
		assert.Equal(t, "https://discord.com/channels/g-1/c-1/m-1", res.URL)
	})

	t.Run("no media sends no files", func(t *testing.T) {
		api := &fakeAPI{channel: &discordgo.Channel{ID: "dm", Type: discordgo.ChannelTypeDM}}
		res, err := NewWithAPI(api, "dm", readyState()).Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.NoError(t, err)

		require.Len(t, api.sends, 1)
		assert.Nil(t, api.sends[0].Files)
		assert.Equal(t, "https://discord.com/channels/@me/dm/m-1", res.URL)
	})

	t.Run("send error is a transport error", func(t *testing.T) {
		api := &fakeAPI{channel: textChannel(), sendErr: errors.New("HTTP 429 Too Many Requests")}
		_, err := NewWithAPI(api, "c-1", readyState()).Publish(context.Background(), publish.PostPayload{Text: "hi"})
		require.Error(t, err)
		assert.Equal(t, publish.TransportError, publish.KindOf(err))
		assert.Contains(t, err.Error(), "429")
	})
}

func TestIsTextBased(t *testing.T) {
	assert.True(t, isTextBased(discordgo.ChannelTypeGuildText))
	assert.True(t, isTextBased(discordgo.ChannelTypeGuildPublicThread))
	assert.True(t, isTextBased(discordgo.ChannelTypeGuildVoice))
	assert.True(t, isTextBased(discordgo.ChannelTypeGuildStageVoice))
	assert.False(t, isTextBased(discordgo.ChannelTypeGuildCategory))
	assert.False(t, isTextBased(discordgo.ChannelTypeGuildForum))
}
