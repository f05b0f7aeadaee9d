package publish

import (
	"context"
	"strings"
)

// Platform identifies a publishing destination.
type Platform string

const (
	Telegram Platform = "telegram"
	Discord  Platform = "discord"
	X        Platform = "x"
	Reddit   Platform = "reddit"
	Mastodon Platform = "mastodon"
	Bluesky  Platform = "bluesky"
)

var dispatchOrder = []Platform{Telegram, Discord, X, Reddit, Mastodon, Bluesky}

// Platforms returns every known platform in dispatch order.
func Platforms() []Platform {
	return append([]Platform(nil), dispatchOrder...)
}

// ParsePlatform resolves a user supplied platform name.
func ParsePlatform(raw string) (Platform, bool) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "twitter" {
		return X, true
	}
	for _, p := range dispatchOrder {
		if string(p) == raw {
			return p, true
		}
	}
	return "", false
}

// MediaKind is the coarse type of an attachment.
type MediaKind string

const (
	Image MediaKind = "image"
	Video MediaKind = "video"
)

// KindFromMIME derives the media kind from a MIME type.
func KindFromMIME(mimeType string) (MediaKind, bool) {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(t, "image/"):
		return Image, true
	case strings.HasPrefix(t, "video/"):
		return Video, true
	}
	return "", false
}

// MediaDescriptor references one attached file. An empty LocalPath means the
// file cannot be uploaded; adapters skip such items.
type MediaDescriptor struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size"`
	MIMEType  string    `json:"type"`
	Kind      MediaKind `json:"kind"`
	LocalPath string    `json:"path,omitempty"`
	// AltText describes the media for platforms that support it.
	AltText string `json:"alt,omitempty"`
}

// Usable reports whether the item has a local file to read from.
func (m MediaDescriptor) Usable() bool {
	return strings.TrimSpace(m.LocalPath) != ""
}

// FilterUsable returns the items with a local path, preserving order.
func FilterUsable(media []MediaDescriptor) []MediaDescriptor {
	out := make([]MediaDescriptor, 0, len(media))
	for _, m := range media {
		if m.Usable() {
			out = append(out, m)
		}
	}
	return out
}

// PostPayload is one composed post and the platforms it should go to.
type PostPayload struct {
	Text    string
	Media   []MediaDescriptor
	Targets map[Platform]bool

	// IdempotencyKey enables resubmission without duplicate posts when the
	// dispatcher has a ledger. Empty disables deduplication.
	IdempotencyKey string
}

// Wants reports whether p was requested.
func (p PostPayload) Wants(platform Platform) bool {
	return p.Targets[platform]
}

// Result is the success record of one platform.
type Result struct {
	Platform   Platform `json:"-"`
	MessageID  string   `json:"messageId,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
	URL        string   `json:"url,omitempty"`
	Native     any      `json:"native,omitempty"`
	Replayed   bool     `json:"replayed,omitempty"`
}

// Failure is the failure record of one platform.
type Failure struct {
	Platform Platform  `json:"-"`
	Kind     ErrorKind `json:"kind"`
	Reason   string    `json:"reason"`
}

// DispatchResult aggregates the outcome of one dispatch.
type DispatchResult struct {
	OK        bool                 `json:"ok"`
	Results   map[Platform]Result  `json:"results,omitempty"`
	Failures  map[Platform]Failure `json:"failures,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorKind ErrorKind            `json:"errorKind,omitempty"`
}

// Publisher sends a payload to a single platform.
type Publisher interface {
	Platform() Platform
	Publish(ctx context.Context, payload PostPayload) (Result, error)
}
