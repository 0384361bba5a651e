// Package media handles inline media carried as data URIs.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	scheme       = "data:"
	base64Marker = ";base64,"
)

var (
	// ErrNotDataURI is returned when the value does not start with "data:".
	ErrNotDataURI = errors.New("value is not a data URI")
	// ErrNotBase64 is returned when the data URI does not declare base64 encoding.
	ErrNotBase64 = errors.New("data URI is not base64 encoded")
	// ErrMissingType is returned when the data URI has no media type.
	ErrMissingType = errors.New("data URI has no media type")
)

// Inline is binary content embedded in a request together with its media type.
type Inline struct {
	MIMEType string
	Data     []byte
}

// IsImage reports whether the media type is an image type.
func (in Inline) IsImage() bool {
	return strings.HasPrefix(in.MIMEType, "image/")
}

// DataURI encodes the content back to its data URI form.
func (in Inline) DataURI() string {
	return Encode(in.MIMEType, in.Data)
}

// Parse decodes a string of the form data:<media-type>;base64,<encoded-bytes>.
func Parse(uri string) (Inline, error) {
	if !strings.HasPrefix(uri, scheme) {
		return Inline{}, ErrNotDataURI
	}
	rest := uri[len(scheme):]

	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return Inline{}, ErrNotBase64
	}

	mimeType := strings.TrimSpace(rest[:idx])
	// parameters such as charset may precede the base64 marker
	if semi := strings.Index(mimeType, ";"); semi >= 0 {
		mimeType = mimeType[:semi]
	}
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return Inline{}, ErrMissingType
	}

	payload := rest[idx+len(base64Marker):]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Inline{}, fmt.Errorf("failed to decode data URI payload: %w", err)
	}

	return Inline{MIMEType: strings.ToLower(mimeType), Data: data}, nil
}

// Encode builds a data URI from a media type and raw bytes.
func Encode(mimeType string, data []byte) string {
	return scheme + mimeType + base64Marker + base64.StdEncoding.EncodeToString(data)
}
