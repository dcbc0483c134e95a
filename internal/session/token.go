// File: internal/session/token.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"strings"

	"github.com/dchest/uniuri"
)

// TokenLen is the number of characters in a session token.
const TokenLen = 64

// TokenChars is the base32-style alphabet tokens are drawn from (5 bits per char).
var TokenChars = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567")

// NewToken returns a fresh token read from crypto/rand.
func NewToken() string {
	return uniuri.NewLenChars(TokenLen, TokenChars)
}

// FromCookie scans a Cookie header value for name and returns its value.
func FromCookie(header, name string) (string, bool) {
	for header != "" {
		var part string
		part, header, _ = strings.Cut(header, ";")
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != name {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v == "" {
			continue
		}
		return v, true
	}
	return "", false
}
