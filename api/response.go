// Package api
// Author: momentics <momentics@gmail.com>
//
// Handler responses. A Response is a short string whose leading characters select
// how the engine reacts: an HTTP one-shot request turns it into a status line and
// body, a WebSocket session treats any non-empty value as a close reason.
//
//	""          success (HTTP: 204 No content)
//	"NNN text"  literal status line, text as body
//	"*text"     200 OK, text/plain body
//	"@path"     file contents with a content type from the extension, 404 if absent
//	">url"      302 redirect
//	"401 realm" 401 with WWW-Authenticate: Basic realm="realm"
//	other       500 with the value as reason and body

package api

import (
	"fmt"
	"strconv"
)

// Response is the value returned by every handler event.
type Response string

// OK is the empty, successful response.
const OK Response = ""

// Text answers 200 OK with body as text/plain.
func Text(body string) Response { return Response("*" + body) }

// File streams the named file back.
func File(path string) Response { return Response("@" + path) }

// Redirect answers 302 with Location set to loc.
func Redirect(loc string) Response { return Response(">" + loc) }

// Status answers with an explicit status code and reason text.
func Status(code int, reason string) Response {
	return Response(fmt.Sprintf("%03d %s", code, reason))
}

// Unauthorized asks the client for Basic credentials for realm.
func Unauthorized(realm string) Response { return Response("401 " + realm) }

// NoContent answers 204 without a body.
func NoContent() Response { return Response("204 ") }

// IsOK reports whether r signals success.
func (r Response) IsOK() bool { return r == OK }

// StatusCode extracts the leading three-digit status, if r has one.
func (r Response) StatusCode() (int, bool) {
	if len(r) < 4 || r[3] != ' ' {
		return 0, false
	}
	for i := 0; i < 3; i++ {
		if r[i] < '0' || r[i] > '9' {
			return 0, false
		}
	}
	code, err := strconv.Atoi(string(r[:3]))
	return code, err == nil
}
