package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// NewMediaDescriptor inspects the file at path and describes it. Files that
// are neither images nor videos are rejected.
func NewMediaDescriptor(path string) (MediaDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MediaDescriptor{}, Validationf("", "media %q not found", path)
		}
		return MediaDescriptor{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return MediaDescriptor{}, Validationf("", "media %q is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return MediaDescriptor{}, fmt.Errorf("detect media type: %w", err)
	}

	kind, ok := KindFromMIME(mt.String())
	if !ok {
		return MediaDescriptor{}, Validationf("", "unsupported media type %s for %q", mt.String(), path)
	}

	return MediaDescriptor{
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		MIMEType:  mt.String(),
		Kind:      kind,
		LocalPath: path,
	}, nil
}

// Open returns a read stream for the descriptor's local file. The caller
// closes it once the upload call returns.
func (m MediaDescriptor) Open(platform Platform) (*os.File, error) {
	file, err := os.Open(m.LocalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Validationf(platform, "media %q not found", m.LocalPath)
		}
		return nil, Transport(platform, fmt.Errorf("open media: %w", err))
	}
	return file, nil
}

// UploadName is the file name presented to platforms.
func (m MediaDescriptor) UploadName() string {
	if m.Name != "" {
		return m.Name
	}
	return filepath.Base(m.LocalPath)
}
