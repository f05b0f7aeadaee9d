package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vartanbeno/go-reddit/v2/reddit"
	"golang.org/x/oauth2"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const (
	// MaxTitleLength is Reddit's title limit in characters.
	MaxTitleLength = 300
	// FallbackTitle is used when the post text is empty.
	FallbackTitle = "New Post"

	defaultUserAgent = "NewsAutoSender/1.0.0"
)

// Config holds script-app credentials and the destination subreddit.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Subreddit    string
	UserAgent    string

	// AuthURL and APIURL override the Reddit endpoints.
	AuthURL string
	APIURL  string
}

// Client submits self posts to a subreddit.
type Client struct {
	api       *reddit.Client
	subreddit string
}

// New creates a Reddit publisher. No network call happens until the first
// Publish; the password-grant token is fetched then and reused until it
// expires.
func New(cfg Config) (*Client, error) {
	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "client id")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if cfg.Subreddit == "" {
		missing = append(missing, "subreddit")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: string(publish.Reddit), Variables: missing}
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	opts := []reddit.Opt{
		reddit.WithUserAgent(cfg.UserAgent),
		reddit.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.AuthURL != "" {
		opts = append(opts, reddit.WithTokenURL(cfg.AuthURL))
	}
	if cfg.APIURL != "" {
		opts = append(opts, reddit.WithBaseURL(strings.TrimRight(cfg.APIURL, "/")+"/"))
	}

	api, err := reddit.NewClient(reddit.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cfg.Username,
		Password: cfg.Password,
	}, opts...)
	if err != nil {
		return nil, publish.ConfigErrorf(publish.Reddit, "create reddit client: %v", err)
	}

	return &Client{api: api, subreddit: strings.TrimPrefix(cfg.Subreddit, "r/")}, nil
}

// Platform identifies the adapter.
func (c *Client) Platform() publish.Platform { return publish.Reddit }

// Publish submits a self post. Reddit self posts cannot carry uploads, so
// any media in the payload is left out.
func (c *Client) Publish(ctx context.Context, payload publish.PostPayload) (publish.Result, error) {
	if n := len(payload.Media); n > 0 {
		logutil.Debugf("reddit: %d media item(s) not attached to self post", n)
	}

	post, _, err := c.api.Post.SubmitText(ctx, reddit.SubmitTextRequest{
		Subreddit: c.subreddit,
		Title:     Title(payload.Text),
		Text:      payload.Text,
	})
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusUnauthorized || rerr.Response.StatusCode == http.StatusForbidden) {
			return publish.Result{}, publish.ConfigErrorf(publish.Reddit, "reddit rejected credentials: status %d", rerr.Response.StatusCode)
		}
		return publish.Result{}, publish.Transport(publish.Reddit, fmt.Errorf("submit: %w", err))
	}
	if post == nil {
		return publish.Result{}, publish.Transport(publish.Reddit, errors.New("submit: empty response"))
	}

	logutil.Debugf("reddit post result: %s", post.FullID)
	return publish.Result{MessageID: post.FullID, URL: post.URL}, nil
}

// Title derives a post title from text: the first MaxTitleLength
// characters, or FallbackTitle when text is empty.
func Title(text string) string {
	runes := []rune(text)
	if len(runes) > MaxTitleLength {
		runes = runes[:MaxTitleLength]
	}
	if len(runes) == 0 {
		return FallbackTitle
	}
	return string(runes)
}

var _ publish.Publisher = (*Client)(nil)
