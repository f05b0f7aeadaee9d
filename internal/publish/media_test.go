package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG header plus IHDR chunk
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestNewMediaDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	m, err := NewMediaDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", m.Name)
	assert.Equal(t, "image/png", m.MIMEType)
	assert.Equal(t, Image, m.Kind)
	assert.Equal(t, int64(len(pngHeader)), m.SizeBytes)
	assert.Equal(t, path, m.LocalPath)
	assert.Equal(t, "cat.png", m.UploadName())
}

func TestNewMediaDescriptorRejects(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("just some notes"), 0o600))

	for _, path := range []string{text, dir, filepath.Join(dir, "missing.png")} {
		_, err := NewMediaDescriptor(path)
		require.Error(t, err, path)
		assert.Equal(t, ValidationError, KindOf(err), path)
	}
}

func TestMediaOpen(t *testing.T) {
	_, err := MediaDescriptor{LocalPath: filepath.Join(t.TempDir(), "gone.mp4")}.Open(Telegram)
	require.Error(t, err)
	assert.Equal(t, ValidationError, KindOf(err))

	m := MediaDescriptor{LocalPath: "/var/media/clip.mp4"}
	assert.Equal(t, "clip.mp4", m.UploadName())
}
