package imagesvc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"imagent/pkg/artifact"
)

// ErrUnsupportedURI is returned for image URIs that are neither http(s) nor data:.
var ErrUnsupportedURI = errors.New("unsupported image uri")

type imagesPayload struct {
	Data []struct {
		URL     *string `json:"url"`
		B64JSON *string `json:"b64_json"`
	} `json:"data"`
}

// ParseReferences extracts the image references of a service reply, keeping
// their order. It returns nil when the body is not the expected shape.
func ParseReferences(body []byte) []artifact.Reference {
	var p imagesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil
	}
	var refs []artifact.Reference
	for _, d := range p.Data {
		var ref artifact.Reference
		if d.URL != nil {
			ref.URL = strings.TrimSpace(*d.URL)
		}
		if d.B64JSON != nil {
			ref.B64JSON = *d.B64JSON
		}
		if !ref.IsZero() {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Excerpt returns at most the first 200 bytes of body, cut on a rune boundary.
func Excerpt(body []byte) string {
	if len(body) <= excerptLimit {
		return string(body)
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

// DecodeDataURI decodes a base64 data: URI such as data:image/png;base64,....
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data uri", ErrUnsupportedURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data uri must be base64 encoded", ErrUnsupportedURI)
	}
	return DecodeBase64(payload)
}

// DecodeBase64 accepts both padded and unpadded standard encodings.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return data, nil
}
