package mastodon

import (
	"context"
	"fmt"
	"strings"
	"time"

	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const requestTimeout = 60 * time.Second

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// Client wraps the Mastodon API client.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon publisher.
func New(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.Server) == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: string(publish.Mastodon), Variables: missing}
	}

	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout

	return &Client{client: mastodonClient}, nil
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.Mastodon }

// Publish uploads every usable media item in order and posts one status
// referencing them.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	var mediaIDs []mastodonapi.ID
	for _, m := range publish.FilterUsable(payload.Media) {
		attachment, err := c.uploadMedia(ctx, m)
		if err != nil {
			return publish.Result{}, err
		}
		logutil.Debugf("mastodon: uploaded %s as %s", m.UploadName(), attachment.ID)
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	status, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   payload.Text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Mastodon, fmt.Errorf("post status: %w", err))
	}

	return publish.Result{MessageID: string(status.ID), URL: status.URL}, nil
}

func (c *Client) uploadMedia(ctx context.Context, m publish.MediaDescriptor) (*mastodonapi.Attachment, error) {
	file, err := m.Open(publish.Mastodon)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        file,
		Description: m.AltText,
	})
	if err != nil {
		return nil, publish.Transport(publish.Mastodon, fmt.Errorf("upload media: %w", err))
	}

	return attachment, nil
}

var _ publish.Publisher = (*Client)(nil)
