// Package security provides API key checks, input validation and audit
// logging for the HTTP surface.
package security

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// KeySource names where a request carried its API key.
type KeySource string

const (
	KeyNone   KeySource = ""
	KeyHeader KeySource = "x-api-key"
	KeyBearer KeySource = "bearer"
	KeyQuery  KeySource = "query"
)

// ExtractAPIKey returns the API key of a request. The x-api-key header wins
// over an Authorization bearer token, which wins over the api_key or
// x-api-key query parameters.
func ExtractAPIKey(r *http.Request) (string, KeySource) {
	if k := strings.TrimSpace(r.Header.Get("X-Api-Key")); k != "" {
		return k, KeyHeader
	}
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if k := strings.TrimSpace(auth[7:]); k != "" {
			return k, KeyBearer
		}
	}
	q := r.URL.Query()
	if k := q.Get("api_key"); k != "" {
		return k, KeyQuery
	}
	if k := q.Get("x-api-key"); k != "" {
		return k, KeyQuery
	}
	return "", KeyNone
}

// KeyMatches compares a presented key with the configured one in constant
// time. An empty expected key never matches.
func KeyMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// KeyTail renders a key as "***" plus its last four characters.
func KeyTail(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "***"
	}
	return "***" + key[len(key)-4:]
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	default:
		return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
}
