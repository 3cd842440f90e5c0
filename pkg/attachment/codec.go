// Package attachment encodes activity files as self-describing data URLs so they can be
// stored inline and rendered or downloaded later without a separate fetch.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize is the largest file accepted for inline encoding.
const MaxSize = 1 << 20

var (
	// ErrTooLarge indicates the file exceeds MaxSize.
	ErrTooLarge = errors.New("attachment exceeds the 1 MiB limit")
	// ErrEmpty indicates no bytes were supplied.
	ErrEmpty = errors.New("attachment is empty")
	// ErrNotDataURL indicates the content is not a base64 data URL.
	ErrNotDataURL = errors.New("content is not a base64 data url")
)

const (
	dataPrefix   = "data:"
	base64Marker = ";base64,"
)

// Payload is a decoded attachment.
type Payload struct {
	MimeType string
	Data     []byte
}

// Encode returns data as a data URL. An empty mimeType is detected from the content.
func Encode(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	mimeType = NormalizeMime(mimeType)
	if mimeType == "" {
		mimeType = Detect(data)
	}
	return dataPrefix + mimeType + base64Marker + base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a data URL produced by Encode.
func Decode(content string) (Payload, error) {
	mimeType, encoded, err := split(content)
	if err != nil {
		return Payload{}, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return Payload{MimeType: mimeType, Data: data}, nil
}

// FromBase64 accepts either a data URL or bare base64 text and returns the raw bytes,
// enforcing MaxSize on the decoded payload.
func FromBase64(content, mimeType string) (Payload, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Payload{}, ErrEmpty
	}
	if strings.HasPrefix(content, dataPrefix) {
		size, err := Size(content)
		if err != nil {
			return Payload{}, err
		}
		if size > MaxSize {
			return Payload{}, ErrTooLarge
		}
		return Decode(content)
	}
	if base64.StdEncoding.DecodedLen(len(content)) > MaxSize+2 {
		return Payload{}, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return Payload{}, fmt.Errorf("invalid base64 attachment: %w", err)
	}
	if len(data) > MaxSize {
		return Payload{}, ErrTooLarge
	}
	mimeType = NormalizeMime(mimeType)
	if mimeType == "" {
		mimeType = Detect(data)
	}
	return Payload{MimeType: mimeType, Data: data}, nil
}

// Size returns the decoded byte length of a data URL without decoding it.
func Size(content string) (int, error) {
	_, encoded, err := split(content)
	if err != nil {
		return 0, err
	}
	padding := strings.Count(encoded[max(0, len(encoded)-2):], "=")
	return len(encoded)/4*3 - padding, nil
}

// IsDataURL reports whether content is an inline data URL.
func IsDataURL(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), dataPrefix)
}

// IsReference reports whether content points to an external object store.
func IsReference(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Detect sniffs the MIME type of data.
func Detect(data []byte) string {
	return NormalizeMime(mimetype.Detect(data).String())
}

// NormalizeMime lower-cases a MIME type and strips parameters.
func NormalizeMime(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value
}

func split(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, dataPrefix) {
		return "", "", ErrNotDataURL
	}
	idx := strings.Index(content, base64Marker)
	if idx < 0 {
		return "", "", ErrNotDataURL
	}
	mimeType := NormalizeMime(content[len(dataPrefix):idx])
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType, content[idx+len(base64Marker):], nil
}
