package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	data := []byte(`{
		"text": "hello",
		"media": [
			{"name": "a.png", "size": 10, "type": "image/png", "kind": "image", "path": "/tmp/a.png", "alt": "a cat"},
			{"name": "b.mp4", "size": 20, "type": "video/mp4", "path": null},
			{"name": "c.jpg", "size": 30, "type": "image/jpeg"}
		],
		"platforms": {"telegram": true, "discord": false, "twitter": true, "myspace": true},
		"idempotencyKey": "k1"
	}`)

	p, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Text)
	assert.Equal(t, "k1", p.IdempotencyKey)
	assert.Equal(t, map[Platform]bool{Telegram: true, X: true}, p.Targets)

	require.Len(t, p.Media, 3)
	assert.Equal(t, MediaDescriptor{Name: "a.png", SizeBytes: 10, MIMEType: "image/png", Kind: Image, LocalPath: "/tmp/a.png", AltText: "a cat"}, p.Media[0])
	assert.Equal(t, Video, p.Media[1].Kind)
	assert.Empty(t, p.Media[1].LocalPath)
	assert.False(t, p.Media[1].Usable())
	assert.Equal(t, Image, p.Media[2].Kind)

	assert.Equal(t, []MediaDescriptor{p.Media[0]}, FilterUsable(p.Media))
}

func TestDecodePayloadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"null", "null"},
		{"array", `[{"text":"hi"}]`},
		{"string", `"hello"`},
		{"broken", `{"text":`},
		{"bad kind", `{"media":[{"name":"a","type":"image/png","kind":"audio"}]}`},
		{"underivable kind", `{"media":[{"name":"a","type":"application/pdf"}]}`},
		{"negative size", `{"media":[{"name":"a","size":-1,"kind":"image"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, ValidationError, KindOf(err))
		})
	}

	_, err := DecodePayload([]byte("42"))
	assert.EqualError(t, err, "Invalid payload")
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform(" Twitter ")
	assert.True(t, ok)
	assert.Equal(t, X, p)

	p, ok = ParsePlatform("REDDIT")
	assert.True(t, ok)
	assert.Equal(t, Reddit, p)

	_, ok = ParsePlatform("friendster")
	assert.False(t, ok)

	assert.Equal(t, []Platform{Telegram, Discord, X, Reddit, Mastodon, Bluesky}, Platforms())
}
