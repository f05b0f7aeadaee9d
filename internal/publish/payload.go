package publish

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/blacktop/xpublish/internal/logutil"
)

type wirePayload struct {
	Text           string          `json:"text"`
	Media          []wireMedia     `json:"media"`
	Platforms      map[string]bool `json:"platforms"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type wireMedia struct {
	Name string  `json:"name"`
	Size int64   `json:"size"`
	Type string  `json:"type"`
	Kind string  `json:"kind"`
	Path *string `json:"path"`
	Alt  string  `json:"alt"`
}

// DecodePayload parses the JSON form of a post:
//
//	{"text": "...", "media": [{"name","size","type","kind","path"}], "platforms": {"telegram": true}}
//
// Anything that is not a JSON object is rejected before any adapter runs.
// Flags for platforms this build does not know are ignored.
func DecodePayload(data []byte) (PostPayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return PostPayload{}, Validationf("", "Invalid payload")
	}

	var wire wirePayload
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return PostPayload{}, &Error{Kind: ValidationError, Err: fmt.Errorf("Invalid payload: %w", err)}
	}

	payload := PostPayload{
		Text:           wire.Text,
		Targets:        make(map[Platform]bool),
		IdempotencyKey: wire.IdempotencyKey,
	}

	for name, enabled := range wire.Platforms {
		platform, ok := ParsePlatform(name)
		if !ok {
			logutil.Debugf("ignoring unknown platform flag: %s", name)
			continue
		}
		if enabled {
			payload.Targets[platform] = true
		}
	}

	for i, m := range wire.Media {
		kind := MediaKind(m.Kind)
		if m.Kind == "" {
			derived, ok := KindFromMIME(m.Type)
			if !ok {
				return PostPayload{}, Validationf("", "media[%d] %q: unsupported type %q", i, m.Name, m.Type)
			}
			kind = derived
		}
		if kind != Image && kind != Video {
			return PostPayload{}, Validationf("", "media[%d] %q: unsupported kind %q", i, m.Name, m.Kind)
		}
		desc := MediaDescriptor{
			Name:      m.Name,
			SizeBytes: m.Size,
			MIMEType:  m.Type,
			Kind:      kind,
			AltText:   m.Alt,
		}
		if m.Path != nil {
			desc.LocalPath = *m.Path
		}
		if desc.SizeBytes < 0 {
			return PostPayload{}, Validationf("", "media[%d] %q: negative size", i, m.Name)
		}
		payload.Media = append(payload.Media, desc)
	}

	return payload, nil
}
