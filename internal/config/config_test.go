package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/xpublish/internal/publish"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{EnvRedditUserAgent, EnvHistoryPath, EnvRetries, EnvDiscordReadyTimeout, EnvBlueskyPDSURL} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "NewsAutoSender/1.0.0", cfg.Reddit.UserAgent)
	assert.Equal(t, "data/xpublish.db", cfg.HistoryPath)
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Equal(t, 15*time.Second, cfg.Discord.ReadyTimeout)
	assert.Equal(t, "https://bsky.social", cfg.Bluesky.PDSURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvTelegramToken, " bot-token ")
	t.Setenv(EnvTelegramChat, "@news")
	t.Setenv(EnvRetries, "3")
	t.Setenv(EnvDiscordReadyTimeout, "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bot-token", cfg.Telegram.Token)
	assert.Equal(t, "@news", cfg.Telegram.ChatID)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Discord.ReadyTimeout)
	assert.NoError(t, cfg.Validate(publish.Telegram))
}

func TestLoadInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv(EnvRetries, "many")
	_, err := Load()
	assert.ErrorContains(t, err, EnvRetries)

	t.Setenv(EnvRetries, "0")
	_, err = Load()
	assert.ErrorContains(t, err, "at least 1")

	t.Setenv(EnvRetries, "")
	t.Setenv(EnvDiscordReadyTimeout, "soon")
	_, err = Load()
	assert.ErrorContains(t, err, EnvDiscordReadyTimeout)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.X.APIKey = "key"

	err := cfg.Validate(publish.X)
	var missing publish.MissingEnvError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "x", missing.Provider)
	assert.Equal(t, []string{EnvXAccessToken, EnvXAccessSecret, EnvXConsumerSecret}, missing.Variables)
	assert.Equal(t, publish.ConfigError, publish.KindOf(err))

	assert.Error(t, cfg.Validate(publish.Platform("myspace")))
	assert.Error(t, cfg.ValidateForTranslation())
}
