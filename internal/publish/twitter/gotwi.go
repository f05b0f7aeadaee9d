package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
)

const (
	createTweetEndpoint = "https://api.twitter.com/2/tweets"
	metadataEndpoint    = "https://upload.twitter.com/1.1/media/metadata/create.json"

	// chunkSize stays under the 5MB APPEND segment limit.
	chunkSize = 4 << 20

	maxProcessingWait = 20 * time.Second
)

var httpTimeout = 60 * time.Second

// gotwiAPI talks to X through gotwi.
type gotwiAPI struct {
	client *gotwi.Client
}

func newGotwiAPI(cfg Config) (*gotwiAPI, error) {
	var missing []string
	if cfg.APIKey == "" {
		missing = append(missing, "api key")
	}
	if cfg.APISecret == "" {
		missing = append(missing, "api secret")
	}
	if cfg.AccessToken == "" {
		missing = append(missing, "access token")
	}
	if cfg.AccessSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return nil, publish.MissingEnvError{Provider: string(publish.X), Variables: missing}
	}

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                os.Getenv("XPUBLISH_X_DEBUG") == "1" || logutil.Verbose(),
	})
	if err != nil {
		return nil, publish.ConfigErrorf(publish.X, "create X client: %v", err)
	}
	if !client.IsReady() {
		return nil, publish.ConfigErrorf(publish.X, "X client not ready")
	}

	return &gotwiAPI{client: client}, nil
}

func (g *gotwiAPI) CreatePost(ctx context.Context, in PostInput) (*Post, error) {
	out := &managetweettypes.CreateOutput{}

	if in.CommunityID == "" {
		input := &managetweettypes.CreateInput{
			Text: gotwi.String(in.Text),
		}
		if len(in.MediaIDs) > 0 {
			input.Media = &managetweettypes.CreateInputMedia{MediaIDs: in.MediaIDs}
		}
		res, err := managetweet.Create(ctx, g.client, input)
		if err != nil {
			return nil, unwrapGotwiError(err)
		}
		out = res
	} else {
		// gotwi's CreateInput has no community field, so the body is built here.
		ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")
		if err := g.client.CallAPI(ctx, createTweetEndpoint, http.MethodPost, &createParameters{input: in}, out); err != nil {
			return nil, unwrapGotwiError(err)
		}
	}

	return &Post{ID: deref(out.Data.ID), Text: deref(out.Data.Text)}, nil
}

func (g *gotwiAPI) UploadMedia(ctx context.Context, m publish.MediaDescriptor) (string, error) {
	file, err := m.Open(publish.X)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat media: %w", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read media: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind media: %w", err)
	}

	mediaType, category, err := resolveMediaType(m, head[:n])
	if err != nil {
		return "", err
	}

	total := int(info.Size())
	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, total)
	initRes, err := upload.Initialize(ctx, g.client, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    total,
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID
	logutil.Debugf("initialize complete: media_id=%s", mediaID)

	buf := make([]byte, chunkSize)
	for segment := 0; ; segment++ {
		n, readErr := io.ReadFull(file, buf)
		if n == 0 {
			if readErr == nil || errors.Is(readErr, io.EOF) {
				break
			}
			return "", fmt.Errorf("read media: %w", readErr)
		}

		appendIn := &uploadtypes.AppendInput{
			MediaID:      mediaID,
			Media:        bytes.NewReader(buf[:n]),
			SegmentIndex: segment,
		}
		appendIn.GenerateBoundary()

		logutil.Debugf("append upload: media_id=%s segment=%d bytes=%d", mediaID, segment, n)
		appendRes, err := upload.Append(ctx, g.client, appendIn)
		if err != nil {
			return "", fmt.Errorf("append upload: %w", unwrapGotwiError(err))
		}
		if err := partialError(appendRes.Errors); err != nil {
			return "", fmt.Errorf("append upload: %w", err)
		}

		if readErr != nil {
			if errors.Is(readErr, io.ErrUnexpectedEOF) || errors.Is(readErr, io.EOF) {
				break
			}
			return "", fmt.Errorf("read media: %w", readErr)
		}
	}
	logutil.Debugf("append completed")

	finalizeRes, err := upload.Finalize(ctx, g.client, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	processing := finalizeRes.Data.ProcessingInfo
	logutil.Debugf("finalize state=%s media_id=%s", processing.State, mediaID)
	switch processing.State {
	case "", resources.ProcessingInfoStateSucceeded:
		// no-op
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		if err := waitProcessing(ctx, time.Duration(processing.CheckAfterSecs)*time.Second); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", processing.State)
	}

	if alt := strings.TrimSpace(m.AltText); alt != "" && m.Kind == publish.Image {
		logutil.Debugf("setting alt text: media_id=%s", mediaID)
		if err := g.setAltText(ctx, mediaID, alt); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func (g *gotwiAPI) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := g.client.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", unwrapGotwiError(err))
	}
	logutil.Debugf("alt text set: media_id=%s", mediaID)

	return nil
}

// waitProcessing sleeps for the server suggested interval, capped.
func waitProcessing(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		wait = time.Second
	}
	if wait > maxProcessingWait {
		wait = maxProcessingWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resolveMediaType(m publish.MediaDescriptor, head []byte) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	candidates := []string{strings.ToLower(m.MIMEType), mimeFromExt(m.LocalPath), http.DetectContentType(head)}
	for _, c := range candidates {
		switch {
		case c == "":
			continue
		case strings.Contains(c, "jpeg"):
			return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(c, "png"):
			return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(c, "gif"):
			return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
		case strings.Contains(c, "webp"):
			return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(c, "mp4"):
			return uploadtypes.MediaType("video/mp4"), uploadtypes.MediaCategory("tweet_video"), nil
		case strings.Contains(c, "quicktime"):
			return uploadtypes.MediaType("video/quicktime"), uploadtypes.MediaCategory("tweet_video"), nil
		}
	}

	return "", "", publish.Validationf(publish.X, "unsupported media type for %q", m.LocalPath)
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	}
	return ""
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, fmt.Sprintf("%s", *pe.ResourceType))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return errors.New(summarizeGotwiError(gwErr))
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}

type createBody struct {
	Text        string           `json:"text"`
	Media       *createBodyMedia `json:"media,omitempty"`
	CommunityID string           `json:"community_id,omitempty"`
}

type createBodyMedia struct {
	MediaIDs []string `json:"media_ids"`
}

func newCreateBody(in PostInput) createBody {
	body := createBody{Text: in.Text, CommunityID: in.CommunityID}
	if len(in.MediaIDs) > 0 {
		body.Media = &createBodyMedia{MediaIDs: in.MediaIDs}
	}
	return body
}

type createParameters struct {
	input       PostInput
	accessToken string
}

func (p *createParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *createParameters) AccessToken() string {
	return p.accessToken
}

func (p *createParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *createParameters) Body() (io.Reader, error) {
	buf, err := json.Marshal(newCreateBody(p.input))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *createParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *metadataParameters) AccessToken() string {
	return p.accessToken
}

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *metadataParameters) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ API = (*gotwiAPI)(nil)
