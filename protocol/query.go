// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Query string decoding in classic form-encoding style.

package protocol

import "strings"

// Param is one decoded query parameter. A bare name with no '=' is Valueless,
// which is distinct from an empty value ("name=").
type Param struct {
	Value     string
	Valueless bool
}

// Query maps decoded parameter names to values. A repeated name keeps the last value.
type Query map[string]Param

// Get returns the value of name and whether it was present at all.
func (q Query) Get(name string) (string, bool) {
	p, ok := q[name]
	return p.Value, ok
}

// Valueless reports whether name was given without a value.
func (q Query) Valueless(name string) bool {
	p, ok := q[name]
	return ok && p.Valueless
}

// DecodeQuery splits raw on '&' and decodes each name=value pair.
func DecodeQuery(raw string) Query {
	q := make(Query)
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		name, value, hasValue := strings.Cut(pair, "=")
		name = Unescape(name)
		if name == "" {
			continue
		}
		if !hasValue {
			q[name] = Param{Valueless: true}
			continue
		}
		q[name] = Param{Value: Unescape(value)}
	}
	return q
}

// Unescape turns '+' into a space and decodes %XX escapes. A malformed escape
// is kept literally.
func Unescape(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
