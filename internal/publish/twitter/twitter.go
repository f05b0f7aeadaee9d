package twitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const statusURLFormat = "https://x.com/i/web/status/%s"

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
	// CommunityID targets an X community when set.
	CommunityID string
}

// PostInput is the body of a create-post call.
type PostInput struct {
	Text        string
	MediaIDs    []string
	CommunityID string
}

// Post is the created post as returned by X.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// API uploads media and creates posts.
type API interface {
	UploadMedia(ctx context.Context, m publish.MediaDescriptor) (string, error)
	CreatePost(ctx context.Context, in PostInput) (*Post, error)
}

// Client implements the publisher for X (Twitter).
type Client struct {
	api         API
	communityID string
}

// New constructs an X publisher using gotwi and OAuth 1.0a credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	api, err := newGotwiAPI(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithAPI(api, cfg.CommunityID), nil
}

// NewWithAPI builds a publisher over an existing API implementation.
func NewWithAPI(api API, communityID string) *Client {
	return &Client{api: api, communityID: strings.TrimSpace(communityID)}
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.X }

// Publish uploads every usable media item in order and creates one post
// referencing the uploads that succeeded. A failed upload is skipped.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	var mediaIDs []string
	for _, m := range publish.FilterUsable(payload.Media) {
		logutil.Debugf("uploading media: path=%s kind=%s", m.LocalPath, m.Kind)
		mediaID, err := c.api.UploadMedia(ctx, m)
		if err != nil {
			logutil.Warnf("x: skipping %s: %v", m.UploadName(), err)
			continue
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	in := PostInput{
		Text:        payload.Text,
		MediaIDs:    mediaIDs,
		CommunityID: c.communityID,
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	post, err := c.api.CreatePost(ctx, in)
	if err != nil {
		return publish.Result{}, publish.Transport(publish.X, fmt.Errorf("post tweet: %w", err))
	}
	logutil.Debugf("tweet posted successfully: id=%s", post.ID)

	res := publish.Result{MessageID: post.ID, Native: post}
	if post.ID != "" {
		res.URL = fmt.Sprintf(statusURLFormat, post.ID)
	}
	return res, nil
}

var _ publish.Publisher = (*Client)(nil)
