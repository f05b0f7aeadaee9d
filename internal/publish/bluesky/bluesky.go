package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const (
	// DefaultPDSURL is used when no PDS is configured.
	DefaultPDSURL = "https://bsky.social"

	// maxImages is the image embed limit of a post.
	maxImages = 4

	postCollection = "app.bsky.feed.post"
	requestTimeout = 30 * time.Second
)

// Config holds app-password credentials.
type Config struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

// Client implements the publisher for Bluesky.
type Client struct {
	client *xrpc.Client
	now    func() time.Time
}

// New logs in with an app password and returns a publisher.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.Handle) == "" {
		missing = append(missing, "handle")
	}
	if strings.TrimSpace(cfg.AppPassword) == "" {
		missing = append(missing, "app password")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: string(publish.Bluesky), Variables: missing}
	}
	host := strings.TrimSpace(cfg.PDSURL)
	if host == "" {
		host = DefaultPDSURL
	}

	userAgent := "xpublish/1"
	xrpcClient := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      host,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, publish.ConfigErrorf(publish.Bluesky, "bluesky login: %v", err)
	}

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	return NewWithClient(xrpcClient), nil
}

// NewWithClient builds a publisher over an authenticated XRPC client.
func NewWithClient(client *xrpc.Client) *Client {
	return &Client{client: client, now: time.Now}
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.Bluesky }

// Publish creates a post embedding up to four usable images. Videos are not
// embedded.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	if c.client.Auth == nil {
		return publish.Result{}, publish.ConfigErrorf(publish.Bluesky, "bluesky session not established")
	}

	var images []*bsky.EmbedImages_Image
	for _, m := range publish.FilterUsable(payload.Media) {
		if m.Kind != publish.Image {
			logutil.Debugf("bluesky: skipping %s %s", m.Kind, m.UploadName())
			continue
		}
		if len(images) == maxImages {
			logutil.Warnf("bluesky: only %d images per post, dropping %s", maxImages, m.UploadName())
			continue
		}
		blob, err := c.uploadImage(ctx, m)
		if err != nil {
			return publish.Result{}, err
		}
		images = append(images, &bsky.EmbedImages_Image{Alt: m.AltText, Image: blob})
	}

	post := buildPost(payload.Text, images, c.now())

	out, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return publish.Result{}, publish.Transport(publish.Bluesky, fmt.Errorf("create record: %w", err))
	}

	return publish.Result{MessageID: out.Uri, URL: postURL(c.client.Auth.Handle, out.Uri)}, nil
}

func buildPost(text string, images []*bsky.EmbedImages_Image, now time.Time) *bsky.FeedPost {
	post := &bsky.FeedPost{
		LexiconTypeID: postCollection,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		Text:          text,
	}
	if len(images) > 0 {
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}
	return post
}

func (c *Client) uploadImage(ctx context.Context, m publish.MediaDescriptor) (*util.LexBlob, error) {
	file, err := m.Open(publish.Bluesky)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	resp, err := atproto.RepoUploadBlob(ctx, c.client, file)
	if err != nil {
		return nil, publish.Transport(publish.Bluesky, fmt.Errorf("upload blob: %w", err))
	}
	if resp.Blob == nil {
		return nil, publish.Transport(publish.Bluesky, fmt.Errorf("upload blob: empty response"))
	}

	return resp.Blob, nil
}

// postURL maps at://<did>/app.bsky.feed.post/<rkey> to its web URL.
func postURL(handle, uri string) string {
	idx := strings.LastIndex(uri, "/")
	if handle == "" || idx < 0 || idx == len(uri)-1 {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, uri[idx+1:])
}

var _ publish.Publisher = (*Client)(nil)
