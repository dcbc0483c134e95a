// File: protocol/request.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP request-head parsing for the handshake. The parser works on sub-slices of
// the received bytes and builds its own small maps; the input is never modified.

package protocol

import (
	"bytes"
	"encoding/base64"
	"net"
	"strings"

	"golang.org/x/net/http/httpguts"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/internal/session"
)

var crlf = []byte("\r\n")

// Head holds the routing attributes of one request.
type Head struct {
	Method   string // lower-cased
	URL      string // path, query removed
	RawQuery string
	Proto    string
	Query    Query
	Header   map[string]string // lower-cased names

	IP         string
	Session    string
	NewSession bool // token was generated, not presented by the client

	basicAuth bool // authorization header holds decoded Basic credentials
}

// Get returns a header value by case-insensitive name.
func (h *Head) Get(name string) string {
	return h.Header[strings.ToLower(name)]
}

// Host returns the Host header as sent, port included.
func (h *Head) Host() string { return h.Header[HeaderHost] }

// Origin returns the Origin header.
func (h *Head) Origin() string { return h.Header[HeaderOrigin] }

// HasUpgrade reports whether the request asks for a protocol upgrade.
func (h *Head) HasUpgrade() bool {
	_, ok := h.Header[HeaderUpgrade]
	return ok
}

// HostName returns the Host header without its port.
func (h *Head) HostName() string {
	host := h.Host()
	if name, _, err := net.SplitHostPort(host); err == nil {
		return name
	}
	return strings.Trim(host, "[]")
}

// BasicAuth returns Basic credentials. The parser already base64-decoded them,
// so the authorization header holds "user:pass". Other schemes and undecodable
// values report ok=false.
func (h *Head) BasicAuth() (user, pass string, ok bool) {
	if !h.basicAuth {
		return "", "", false
	}
	return strings.Cut(h.Header[HeaderAuth], ":")
}

// Value renders the head as a structured value:
// {method, url, IP, session, query: {...}, http: {...}}.
// Valueless query names map to null.
func (h *Head) Value() *structpb.Value {
	query := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(h.Query))}
	for k, p := range h.Query {
		if p.Valueless {
			query.Fields[k] = structpb.NewNullValue()
			continue
		}
		query.Fields[k] = structpb.NewStringValue(p.Value)
	}
	hdr := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(h.Header))}
	for k, v := range h.Header {
		hdr.Fields[k] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"method":  structpb.NewStringValue(h.Method),
		"url":     structpb.NewStringValue(h.URL),
		"IP":      structpb.NewStringValue(h.IP),
		"session": structpb.NewStringValue(h.Session),
		"query":   structpb.NewStructValue(query),
		"http":    structpb.NewStructValue(hdr),
	}})
}

// ParseRequest parses a request line and headers. raw must hold the whole head,
// blank line included or not. A missing session cookie yields a fresh token.
func ParseRequest(raw []byte) (*Head, error) {
	line, rest, _ := bytes.Cut(raw, crlf)
	h := &Head{Header: make(map[string]string)}
	if err := h.parseRequestLine(string(line)); err != nil {
		return nil, err
	}
	if err := h.parseHeaders(rest); err != nil {
		return nil, err
	}
	h.decodeAuthorization()
	if tok, ok := session.FromCookie(h.Header[HeaderCookie], SessionCookie); ok {
		h.Session = tok
	} else {
		h.Session = session.NewToken()
		h.NewSession = true
	}
	return h, nil
}

func (h *Head) parseRequestLine(line string) error {
	i := 0
	for i < len(line) && isAlpha(line[i]) {
		i++
	}
	if i == 0 || i == len(line) || line[i] != ' ' {
		return badRequest("Bad request line")
	}
	h.Method = strings.ToLower(line[:i])

	fields := strings.Fields(line[i:])
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "HTTP/") {
		return badRequest("Bad request line")
	}
	h.Proto = fields[1]
	h.URL, h.RawQuery, _ = strings.Cut(fields[0], "?")
	h.Query = DecodeQuery(h.RawQuery)
	return nil
}

func (h *Head) parseHeaders(b []byte) error {
	var last string
	for len(b) > 0 {
		var line []byte
		line, b, _ = bytes.Cut(b, crlf)
		if len(line) == 0 {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last == "" {
				return badRequest("Bad header continuation")
			}
			cont := strings.TrimSpace(string(line))
			if cont != "" {
				h.Header[last] = strings.TrimRight(h.Header[last], " \t") + " " + cont
			}
			continue
		}
		name, value, ok := strings.Cut(string(line), ":")
		if !ok || !httpguts.ValidHeaderFieldName(name) {
			return badRequest("Bad header")
		}
		value = strings.Trim(value, " \t")
		if !httpguts.ValidHeaderFieldValue(value) {
			return badRequest("Bad header")
		}
		last = strings.ToLower(name)
		h.Header[last] = value
	}
	return nil
}

// decodeAuthorization replaces "Basic <b64>" with the decoded credentials.
// An undecodable value is left as sent.
func (h *Head) decodeAuthorization() {
	v, ok := h.Header[HeaderAuth]
	if !ok || len(v) < 6 || !strings.EqualFold(v[:6], "basic ") {
		return
	}
	dec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v[6:]))
	if err != nil {
		return
	}
	h.Header[HeaderAuth] = string(dec)
	h.basicAuth = true
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func badRequest(reason string) error {
	return api.NewHandshakeError(400, reason, api.ErrBadRequest)
}
