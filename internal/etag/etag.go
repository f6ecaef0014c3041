// Package etag computes representation fingerprints and evaluates the
// If-None-Match and If-Match preconditions against them.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrPreconditionRequired is returned for a write without If-Match.
	ErrPreconditionRequired = errors.New("precondition required")

	// ErrPreconditionFailed is returned when If-Match names none of the
	// current representation's tags.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Versioned is implemented by resources whose stored revision can change
// while their representation stays the same, e.g. a user's password hash.
type Versioned interface {
	Version() string
}

// Fingerprint returns the strong, quoted entity tag of v's JSON encoding.
// Encoding is deterministic for the representations served by the API:
// structs keep field order and maps are emitted with sorted keys.
func Fingerprint(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Tag(body, v), nil
}

// Tag returns the entity tag of body, the encoding of v. When v is
// Versioned its revision is part of the tag.
func Tag(body []byte, v any) string {
	h := sha256.New()
	h.Write(body)
	if versioned, ok := v.(Versioned); ok {
		h.Write([]byte{0})
		h.Write([]byte(versioned.Version()))
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// FingerprintBytes returns the entity tag of an already encoded body.
func FingerprintBytes(body []byte) string {
	return Tag(body, nil)
}

// NotModified evaluates an If-None-Match header against current. It uses
// weak comparison, so W/"x" matches "x".
func NotModified(ifNoneMatch, current string) bool {
	for _, tag := range splitTags(ifNoneMatch) {
		if tag == "*" || strings.TrimPrefix(tag, "W/") == strings.TrimPrefix(current, "W/") {
			return true
		}
	}
	return false
}

// CheckWrite evaluates an If-Match header against current using strong
// comparison.
func CheckWrite(ifMatch, current string) error {
	tags := splitTags(ifMatch)
	if len(tags) == 0 {
		return ErrPreconditionRequired
	}
	for _, tag := range tags {
		if tag == "*" {
			return nil
		}
		if strings.HasPrefix(tag, "W/") {
			continue
		}
		if tag == current {
			return nil
		}
	}
	return ErrPreconditionFailed
}

func splitTags(header string) []string {
	var tags []string
	for _, part := range strings.Split(header, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
