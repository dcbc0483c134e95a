// File: protocol/response.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Rendering of handler responses for one-shot HTTP requests. Every response
// closes the connection; there is no keep-alive.

package protocol

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/momentics/wsgate/api"
)

// WriteContinue sends the interim response for "Expect: 100-continue".
func WriteContinue(w io.Writer) error {
	_, err := io.WriteString(w, "HTTP/1.1 100 Continue\r\n\r\n")
	return err
}

// WriteResponse renders r using the response mini-language documented on api.Response.
func WriteResponse(w io.Writer, r api.Response) error {
	s := string(r)
	if s == "" {
		return writeSimple(w, 204, "No content", nil, "")
	}
	switch s[0] {
	case '@':
		return writeFile(w, s[1:])
	case '>':
		return writeSimple(w, 302, "Found", [][2]string{{"Location", s[1:]}}, "")
	case '*':
		return writeSimple(w, 200, "OK", nil, s[1:])
	}
	if code, ok := r.StatusCode(); ok {
		reason := s[4:]
		switch code {
		case 204:
			if reason == "" {
				reason = "No content"
			}
			return writeSimple(w, 204, reason, nil, "")
		case 401:
			auth := fmt.Sprintf("Basic realm=%q", reason)
			return writeSimple(w, 401, "Unauthorized", [][2]string{{"WWW-Authenticate", auth}}, "Login required")
		default:
			return writeSimple(w, code, reason, nil, reason)
		}
	}
	return writeSimple(w, 500, s, nil, s)
}

func writeSimple(w io.Writer, code int, reason string, extra [][2]string, body string) error {
	hdr := make([][2]string, 0, len(extra)+2)
	hdr = append(hdr, extra...)
	if code != 204 && code != 302 {
		hdr = append(hdr, [2]string{"Content-Type", "text/plain"})
	}
	if code != 204 {
		hdr = append(hdr, [2]string{"Content-Length", strconv.Itoa(len(body))})
	}
	if err := writeHead(w, code, reason, hdr); err != nil {
		return err
	}
	_, err := io.WriteString(w, body)
	return err
}

func writeFile(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return writeSimple(w, 404, "Not found", nil, "Not found")
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		return writeSimple(w, 404, "Not found", nil, "Not found")
	}
	hdr := [][2]string{
		{"Content-Type", ContentType(name)},
		{"Content-Length", strconv.FormatInt(fi.Size(), 10)},
	}
	if err := writeHead(w, 200, "OK", hdr); err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// ContentType derives a content type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "":
		return "text/plain"
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	case "js":
		return "text/javascript"
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "text/" + ext
}

func writeHead(w io.Writer, code int, reason string, hdr [][2]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %03d %s\r\n", code, oneLine(reason))
	for _, kv := range hdr {
		b.WriteString(kv[0])
		b.WriteString(": ")
		b.WriteString(oneLine(kv[1]))
		b.WriteString("\r\n")
	}
	b.WriteString("Connection: close\r\n\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// oneLine keeps header text from breaking the response framing.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}
