package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/xpublish/internal/publish"
)

type fakeAPI struct {
	uploaded  []string
	created   []PostInput
	uploadErr error
	failNames map[string]bool
	createErr error
}

func (f *fakeAPI) UploadMedia(_ context.Context, m publish.MediaDescriptor) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if f.failNames[m.Name] {
		return "", errors.New("append upload: 413 Payload Too Large")
	}
	f.uploaded = append(f.uploaded, m.Name)
	return "id-" + m.Name, nil
}

func (f *fakeAPI) CreatePost(_ context.Context, in PostInput) (*Post, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Post{ID: "1700000000", Text: in.Text}, nil
}

func TestPublishUploadsInOrder(t *testing.T) {
	api := &fakeAPI{}
	payload := publish.PostPayload{
		Text: "hello",
		Media: []publish.MediaDescriptor{
			{Name: "c.png", Kind: publish.Image, LocalPath: "/tmp/c.png"},
			{Name: "skip.png", Kind: publish.Image},
			{Name: "a.mp4", Kind: publish.Video, LocalPath: "/tmp/a.mp4"},
			{Name: "b.png", Kind: publish.Image, LocalPath: "/tmp/b.png"},
		},
	}

	res, err := NewWithAPI(api, "").Publish(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"c.png", "a.mp4", "b.png"}, api.uploaded)
	require.Len(t, api.created, 1)
	assert.Equal(t, []string{"id-c.png", "id-a.mp4", "id-b.png"}, api.created[0].MediaIDs)
	assert.Equal(t, "hello", api.created[0].Text)

	assert.Equal(t, "1700000000", res.MessageID)
	assert.Equal(t, "https://x.com/i/web/status/1700000000", res.URL)
	post, ok := res.Native.(*Post)
	require.True(t, ok)
	assert.Equal(t, "hello", post.Text)
}

func TestPublishWithoutMedia(t *testing.T) {
	api := &fakeAPI{}
	payload := publish.PostPayload{Media: []publish.MediaDescriptor{{Name: "nopath.png", Kind: publish.Image}}}

	_, err := NewWithAPI(api, "").Publish(context.Background(), payload)
	require.NoError(t, err)

	assert.Empty(t, api.uploaded)
	require.Len(t, api.created, 1)
	assert.Nil(t, api.created[0].MediaIDs)
	assert.Equal(t, "", api.created[0].Text)
}

func TestPublishCommunity(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewWithAPI(api, " 1493446837214187523 ").Publish(context.Background(), publish.PostPayload{Text: "gm"})
	require.NoError(t, err)
	require.Len(t, api.created, 1)
	assert.Equal(t, "1493446837214187523", api.created[0].CommunityID)
}

func TestPublishErrors(t *testing.T) {
	t.Run("all uploads fail posts text only", func(t *testing.T) {
		api := &fakeAPI{uploadErr: errors.New("initialize upload: 403 Forbidden")}
		payload := publish.PostPayload{Text: "hi", Media: []publish.MediaDescriptor{{Name: "a.png", Kind: publish.Image, LocalPath: "/tmp/a.png"}}}
		res, err := NewWithAPI(api, "").Publish(context.Background(), payload)
		require.NoError(t, err)
		require.Len(t, api.created, 1)
		assert.Nil(t, api.created[0].MediaIDs)
		assert.Equal(t, "1700000000", res.MessageID)
	})

	t.Run("failed upload is skipped", func(t *testing.T) {
		api := &fakeAPI{failNames: map[string]bool{"big.mp4": true}}
		payload := publish.PostPayload{Media: []publish.MediaDescriptor{
			{Name: "a.png", Kind: publish.Image, LocalPath: "/tmp/a.png"},
			{Name: "big.mp4", Kind: publish.Video, LocalPath: "/tmp/big.mp4"},
			{Name: "b.png", Kind: publish.Image, LocalPath: "/tmp/b.png"},
		}}
		_, err := NewWithAPI(api, "").Publish(context.Background(), payload)
		require.NoError(t, err)
		require.Len(t, api.created, 1)
		assert.Equal(t, []string{"id-a.png", "id-b.png"}, api.created[0].MediaIDs)
	})

	t.Run("create failure", func(t *testing.T) {
		api := &fakeAPI{createErr: errors.New("Too Many Requests")}
		_, err := NewWithAPI(api, "").Publish(context.Background(), publish.PostPayload{Text: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "post tweet: Too Many Requests")
	})
}

func TestCreateBody(t *testing.T) {
	tests := []struct {
		name string
		in   PostInput
		want string
	}{
		{
			name: "text only omits media and community",
			in:   PostInput{Text: ""},
			want: `{"text":""}`,
		},
		{
			name: "media ids",
			in:   PostInput{Text: "hi", MediaIDs: []string{"1", "2"}},
			want: `{"text":"hi","media":{"media_ids":["1","2"]}}`,
		},
		{
			name: "community",
			in:   PostInput{Text: "hi", CommunityID: "42"},
			want: `{"text":"hi","community_id":"42"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(newCreateBody(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		name     string
		media    publish.MediaDescriptor
		head     []byte
		category uploadtypes.MediaCategory
		mimeType uploadtypes.MediaType
	}{
		{
			name:     "declared jpeg",
			media:    publish.MediaDescriptor{MIMEType: "image/jpeg", LocalPath: "a.bin"},
			mimeType: uploadtypes.MediaTypeJPEG,
			category: uploadtypes.MediaCategoryTweetImage,
		},
		{
			name:     "extension gif",
			media:    publish.MediaDescriptor{LocalPath: "a.GIF"},
			mimeType: uploadtypes.MediaTypeGIF,
			category: uploadtypes.MediaCategoryTweetGIF,
		},
		{
			name:     "extension mov",
			media:    publish.MediaDescriptor{LocalPath: "clip.mov"},
			mimeType: uploadtypes.MediaType("video/quicktime"),
			category: uploadtypes.MediaCategory("tweet_video"),
		},
		{
			name:     "sniffed png",
			media:    publish.MediaDescriptor{LocalPath: "noext"},
			head:     []byte("\x89PNG\r\n\x1a\n0000"),
			mimeType: uploadtypes.MediaTypePNG,
			category: uploadtypes.MediaCategoryTweetImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt, cat, err := resolveMediaType(tt.media, tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.mimeType, mt)
			assert.Equal(t, tt.category, cat)
		})
	}

	_, _, err := resolveMediaType(publish.MediaDescriptor{LocalPath: "notes.txt"}, []byte("plain text"))
	require.Error(t, err)
	assert.Equal(t, publish.ValidationError, publish.KindOf(err))
}
