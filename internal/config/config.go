package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blacktop/xpublish/internal/publish"
	"github.com/blacktop/xpublish/internal/publish/bluesky"
	"github.com/blacktop/xpublish/internal/publish/discord"
	"github.com/blacktop/xpublish/internal/publish/mastodon"
	"github.com/blacktop/xpublish/internal/publish/reddit"
	"github.com/blacktop/xpublish/internal/publish/telegram"
	"github.com/blacktop/xpublish/internal/publish/twitter"
	"github.com/blacktop/xpublish/internal/translate"
)

// Environment variable names.
const (
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHANNEL_ID"

	EnvDiscordToken   = "DISCORD_BOT_TOKEN"
	EnvDiscordChannel = "DISCORD_CHANNEL_ID"

	EnvXConsumerKey    = "X_CONSUMER_KEY"
	EnvXConsumerSecret = "X_CONSUMER_SECRET"
	EnvXAccessToken    = "X_ACCESS_TOKEN"
	EnvXAccessSecret   = "X_ACCESS_TOKEN_SECRET"
	EnvXCommunityID    = "X_COMMUNITY_ID"

	EnvRedditClientID     = "REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "REDDIT_CLIENT_SECRET"
	EnvRedditUsername     = "REDDIT_USERNAME"
	EnvRedditPassword     = "REDDIT_PASSWORD"
	EnvRedditSubreddit    = "REDDIT_SUBREDDIT"
	EnvRedditUserAgent    = "REDDIT_USER_AGENT"

	EnvMastodonServer       = "MASTODON_SERVER"
	EnvMastodonAccessToken  = "MASTODON_ACCESS_TOKEN"
	EnvMastodonClientID     = "MASTODON_CLIENT_ID"
	EnvMastodonClientSecret = "MASTODON_CLIENT_SECRET"

	EnvBlueskyHandle      = "BLUESKY_HANDLE"
	EnvBlueskyAppPassword = "BLUESKY_APP_PASSWORD"
	EnvBlueskyPDSURL      = "BLUESKY_PDS_URL"

	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGeminiModel  = "GEMINI_MODEL"

	EnvHistoryPath         = "XPUBLISH_HISTORY_PATH"
	EnvRetries             = "XPUBLISH_RETRIES"
	EnvRetryInterval       = "XPUBLISH_RETRY_INTERVAL"
	EnvDiscordReadyTimeout = "XPUBLISH_DISCORD_READY_TIMEOUT"
)

// Config holds all application configuration.
type Config struct {
	Telegram  telegram.Config
	Discord   discord.Config
	X         twitter.Config
	Reddit    reddit.Config
	Mastodon  mastodon.Config
	Bluesky   bluesky.Config
	Translate translate.Config

	HistoryPath string
	Retry       publish.RetryConfig
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: telegram.Config{
			Token:  getEnv(EnvTelegramToken, ""),
			ChatID: getEnv(EnvTelegramChat, ""),
		},
		Discord: discord.Config{
			Token:     getEnv(EnvDiscordToken, ""),
			ChannelID: getEnv(EnvDiscordChannel, ""),
		},
		X: twitter.Config{
			APIKey:       getEnv(EnvXConsumerKey, ""),
			APISecret:    getEnv(EnvXConsumerSecret, ""),
			AccessToken:  getEnv(EnvXAccessToken, ""),
			AccessSecret: getEnv(EnvXAccessSecret, ""),
			CommunityID:  getEnv(EnvXCommunityID, ""),
		},
		Reddit: reddit.Config{
			ClientID:     getEnv(EnvRedditClientID, ""),
			ClientSecret: getEnv(EnvRedditClientSecret, ""),
			Username:     getEnv(EnvRedditUsername, ""),
			Password:     getEnv(EnvRedditPassword, ""),
			Subreddit:    getEnv(EnvRedditSubreddit, ""),
			UserAgent:    getEnv(EnvRedditUserAgent, "NewsAutoSender/1.0.0"),
		},
		Mastodon: mastodon.Config{
			Server:       getEnv(EnvMastodonServer, ""),
			AccessToken:  getEnv(EnvMastodonAccessToken, ""),
			ClientID:     getEnv(EnvMastodonClientID, ""),
			ClientSecret: getEnv(EnvMastodonClientSecret, ""),
		},
		Bluesky: bluesky.Config{
			Handle:      getEnv(EnvBlueskyHandle, ""),
			AppPassword: getEnv(EnvBlueskyAppPassword, ""),
			PDSURL:      getEnv(EnvBlueskyPDSURL, bluesky.DefaultPDSURL),
		},
		Translate: translate.Config{
			APIKey: getEnv(EnvGeminiAPIKey, ""),
			Model:  getEnv(EnvGeminiModel, ""),
		},
		HistoryPath: getEnv(EnvHistoryPath, "data/xpublish.db"),
		Retry:       publish.DefaultRetryConfig(),
	}

	var err error
	cfg.Discord.ReadyTimeout, err = time.ParseDuration(getEnv(EnvDiscordReadyTimeout, "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvDiscordReadyTimeout, err)
	}

	cfg.Retry.Attempts, err = strconv.Atoi(getEnv(EnvRetries, "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvRetries, err)
	}
	if cfg.Retry.Attempts < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvRetries)
	}

	cfg.Retry.InitialInterval, err = time.ParseDuration(getEnv(EnvRetryInterval, "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvRetryInterval, err)
	}

	return cfg, nil
}

// Validate checks that the credentials platform needs are present.
func (c *Config) Validate(platform publish.Platform) error {
	var required map[string]string
	switch platform {
	case publish.Telegram:
		required = map[string]string{
			EnvTelegramToken: c.Telegram.Token,
			EnvTelegramChat:  c.Telegram.ChatID,
		}
	case publish.Discord:
		required = map[string]string{
			EnvDiscordToken:   c.Discord.Token,
			EnvDiscordChannel: c.Discord.ChannelID,
		}
	case publish.X:
		required = map[string]string{
			EnvXConsumerKey:    c.X.APIKey,
			EnvXConsumerSecret: c.X.APISecret,
			EnvXAccessToken:    c.X.AccessToken,
			EnvXAccessSecret:   c.X.AccessSecret,
		}
	case publish.Reddit:
		required = map[string]string{
			EnvRedditClientID:     c.Reddit.ClientID,
			EnvRedditClientSecret: c.Reddit.ClientSecret,
			EnvRedditUsername:     c.Reddit.Username,
			EnvRedditPassword:     c.Reddit.Password,
			EnvRedditSubreddit:    c.Reddit.Subreddit,
		}
	case publish.Mastodon:
		required = map[string]string{
			EnvMastodonServer:      c.Mastodon.Server,
			EnvMastodonAccessToken: c.Mastodon.AccessToken,
		}
	case publish.Bluesky:
		required = map[string]string{
			EnvBlueskyHandle:      c.Bluesky.Handle,
			EnvBlueskyAppPassword: c.Bluesky.AppPassword,
		}
	default:
		return fmt.Errorf("unknown platform %q", platform)
	}

	var missing []string
	for _, name := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return publish.MissingEnvError{Provider: string(platform), Variables: missing}
	}
	return nil
}

// ValidateForTranslation checks configuration needed for translation.
func (c *Config) ValidateForTranslation() error {
	if c.Translate.APIKey == "" {
		return publish.MissingEnvError{Provider: "translation", Variables: []string{EnvGeminiAPIKey}}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}
