// File: protocol/handshake.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handshake: reading the request head within a deadline, RFC6455 upgrade
// validation, Sec-WebSocket-Accept computation and the 101 response.

package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/momentics/wsgate/api"
)

var headTerminator = []byte("\r\n\r\n")

// ReadRequest reads from s until the blank line that ends the request head.
// raw is the head including the terminator; rest holds any bytes read past it,
// which belong to the body or to the first frame.
//
// The deadline covers assembling the whole head. A timeout or an oversized head
// is a HandshakeError; an early EOF or read failure is returned as is.
func ReadRequest(s api.Stream, timeout time.Duration, limit int) (raw, rest []byte, err error) {
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}
	if timeout > 0 {
		if err := s.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, err
		}
		defer s.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 0, 1024)
	scanned := 0
	for {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), 2*cap(buf))
			copy(grown, buf)
			buf = grown
		}
		n, rerr := s.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		// the terminator may straddle two reads
		from := max(scanned-3, 0)
		if i := bytes.Index(buf[from:], headTerminator); i >= 0 {
			end := from + i + len(headTerminator)
			return buf[:end], buf[end:], nil
		}
		scanned = len(buf)
		if len(buf) > limit {
			return nil, nil, api.NewHandshakeError(431, "Request header too large", api.ErrHeaderTooLarge)
		}
		if rerr != nil {
			var ne net.Error
			if errors.As(rerr, &ne) && ne.Timeout() {
				return nil, nil, api.NewHandshakeError(408, "Handshake timeout", api.ErrHandshakeTimeout)
			}
			if rerr == io.EOF {
				return nil, nil, io.ErrUnexpectedEOF
			}
			return nil, nil, rerr
		}
	}
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
// This implements the algorithm specified in RFC6455 Section 1.3.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// ValidateUpgrade checks the request against the RFC6455 subset the server speaks.
func (h *Head) ValidateUpgrade() error {
	switch {
	case h.Method != "get":
		return badRequest("Bad method (not GET)")
	case !strings.EqualFold(h.Header[HeaderUpgrade], "websocket"):
		return badRequest("Bad upgrade header (not websocket)")
	case h.Header[HeaderVersion] != WebSocketVersion:
		return badRequest("Bad websocket version (not 13)")
	case h.Header[HeaderKey] == "":
		return badRequest("No websocket key")
	}
	return nil
}

// SwitchingProtocols renders the 101 response. The session cookie is scoped to
// cookiePath and to the request host without its port, and marked Secure when
// the stream is TLS.
func SwitchingProtocols(h *Head, cookiePath string, secure bool) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(ComputeAcceptKey(h.Header[HeaderKey]))
	b.WriteString("\r\n")
	b.WriteString("Set-Cookie: ")
	b.WriteString(SessionCookie)
	b.WriteByte('=')
	b.WriteString(h.Session)
	if cookiePath == "" {
		cookiePath = h.URL
	}
	b.WriteString("; Path=")
	b.WriteString(cookiePath)
	if host := h.HostName(); host != "" {
		b.WriteString("; Domain=")
		b.WriteString(host)
	}
	if secure {
		b.WriteString("; Secure")
	}
	b.WriteString("\r\n\r\n")
	return []byte(b.String())
}
