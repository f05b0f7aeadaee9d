package mastodon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/xpublish/internal/publish"
)

func TestNewMissingConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, publish.ConfigError, publish.KindOf(err))
	assert.Contains(t, err.Error(), "server")
}

func TestPublish(t *testing.T) {
	var uploads int
	var statusForm map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			uploads++
			fmt.Fprintf(w, `{"id":"m%d","type":"image"}`, uploads)
		case r.URL.Path == "/api/v1/statuses":
			assert.NoError(t, r.ParseForm())
			statusForm = r.PostForm
			w.Write([]byte(`{"id":"s1","url":"https://mastodon.example/@me/s1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c, err := New(Config{Server: server.URL, AccessToken: "token"})
	require.NoError(t, err)

	dir := t.TempDir()
	var media []publish.MediaDescriptor
	for _, name := range []string{"a.png", "b.png"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("img"), 0o600))
		media = append(media, publish.MediaDescriptor{Name: name, Kind: publish.Image, LocalPath: path})
	}
	media = append(media, publish.MediaDescriptor{Name: "nopath.mp4", Kind: publish.Video})

	res, err := c.Publish(context.Background(), publish.PostPayload{Text: "toot", Media: media})
	require.NoError(t, err)

	assert.Equal(t, 2, uploads)
	assert.Equal(t, []string{"toot"}, statusForm["status"])
	assert.Equal(t, []string{"m1", "m2"}, statusForm["media_ids[]"])
	assert.Equal(t, "s1", res.MessageID)
	assert.Equal(t, "https://mastodon.example/@me/s1", res.URL)
}

func TestPublishStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"Validation failed: Text can't be blank"}`))
	}))
	defer server.Close()

	c, err := New(Config{Server: server.URL, AccessToken: "token"})
	require.NoError(t, err)

	_, err = c.Publish(context.Background(), publish.PostPayload{})
	require.Error(t, err)
	assert.Equal(t, publish.TransportError, publish.KindOf(err))
	assert.Contains(t, err.Error(), "post status")
}
